package storage

import (
	"time"

	"gorm.io/datatypes"
)

// CredentialRecord persists the single bearer credential slot so a session
// survives a client relaunch.
type CredentialRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Slot      string    `gorm:"uniqueIndex;not null" json:"slot"`
	Token     string    `gorm:"not null" json:"token"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName fixes the credential table name.
func (CredentialRecord) TableName() string {
	return "credential_records"
}

// CachedProfile stores the last server-confirmed user profile so a relaunch
// can render the previous identity while the session is revalidated.
type CachedProfile struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UserID       string         `gorm:"uniqueIndex;not null" json:"user_id"`
	Name         string         `json:"name"`
	Email        string         `gorm:"index" json:"email"`
	Role         string         `json:"role"`
	IsSuperAdmin bool           `json:"is_super_admin"`
	Privileges   datatypes.JSON `json:"privileges"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName fixes the cached profile table name.
func (CachedProfile) TableName() string {
	return "cached_profiles"
}
