package storage

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pricepulse-client-go/internal/platform/errors"
)

// Open initializes the SQLite database backing durable client state and
// migrates the schema. A file-based DSN gets its parent directory created
// on demand; ":memory:" style DSNs pass through untouched.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = filepath.Join("data", "pricepulse-client.db")
	}
	if !strings.Contains(dsn, ":memory:") {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(errors.KindStorage, "open", "failed to create data directory", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "open", "failed to open database", err)
	}

	if err := db.AutoMigrate(&CredentialRecord{}, &CachedProfile{}); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migrate", "failed to migrate schema", err)
	}
	return db, nil
}
