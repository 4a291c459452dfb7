package models

import "time"

// Group is a tenant organization that owns API keys.
type Group struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name string `gorm:"type:text;not null;uniqueIndex"` // Display name.

	APIKeys []APIKey `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"` // Owned API keys.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
