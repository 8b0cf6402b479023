package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrNoCachedProfile indicates the cache holds no profile yet.
var ErrNoCachedProfile = errors.New("no cached profile")

// ProfileCache reads and writes the last confirmed user profile.
type ProfileCache struct {
	db *gorm.DB
}

// NewProfileCache wraps the shared database handle.
func NewProfileCache(db *gorm.DB) *ProfileCache {
	return &ProfileCache{db: db}
}

// Save replaces any cached profile with the supplied one. The cache holds at
// most one row: the identity of the current session.
func (c *ProfileCache) Save(ctx context.Context, profile CachedProfile) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&CachedProfile{}).Error; err != nil {
			return err
		}
		return tx.Create(&profile).Error
	})
}

// Latest returns the cached profile, or ErrNoCachedProfile when unset.
func (c *ProfileCache) Latest(ctx context.Context) (CachedProfile, error) {
	var profile CachedProfile
	err := c.db.WithContext(ctx).Order("updated_at desc").First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CachedProfile{}, ErrNoCachedProfile
		}
		return CachedProfile{}, err
	}
	return profile, nil
}

// Clear drops the cached profile. Safe to call when nothing is cached.
func (c *ProfileCache) Clear(ctx context.Context) error {
	return c.db.WithContext(ctx).Where("1 = 1").Delete(&CachedProfile{}).Error
}
