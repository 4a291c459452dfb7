package models

import "time"

// APIKey identifies one tenant credential. Only the SHA-256 digest of the
// secret is ever stored; the plaintext is returned once at creation or
// rotation time and cannot be recovered afterwards.
type APIKey struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string `gorm:"type:text;not null"` // Display name.
	Description string `gorm:"type:text"`          // Optional notes.

	GroupID uint64 `gorm:"not null;index"` // Owning group.
	Group   *Group `gorm:"foreignKey:GroupID"`

	KeyDigest string `gorm:"type:char(64);not null;uniqueIndex"` // SHA-256 hex digest of the secret.

	Domains []Domain `gorm:"many2many:api_key_domains"` // Entitled domains.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
