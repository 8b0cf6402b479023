package credential

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pricepulse-client-go/internal/platform/storage"
)

type sqliteStore struct {
	db   *gorm.DB
	slot string
}

// NewSQLite builds a SQLite-backed credential store. This is the durable
// default: the credential survives a client relaunch.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{
		db:   db,
		slot: cfg.slot(),
	}, nil
}

func (s *sqliteStore) Get(ctx context.Context) (string, error) {
	var record storage.CredentialRecord
	err := s.db.WithContext(ctx).Where("slot = ?", s.slot).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return record.Token, nil
}

func (s *sqliteStore) Set(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("slot = ?", s.slot).Delete(&storage.CredentialRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(&storage.CredentialRecord{
			Slot:  s.slot,
			Token: token,
		}).Error
	})
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("slot = ?", s.slot).Delete(&storage.CredentialRecord{}).Error
}

func (s *sqliteStore) Close(_ context.Context) error {
	// The database handle is shared with other repositories and closed by
	// its owner.
	return nil
}
