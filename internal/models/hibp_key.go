package models

import "time"

// HIBPKey stores the shared upstream API key. The table holds at most one
// row; writes go through the admin handler, which also invalidates the
// upstream client's key cache.
type HIBPKey struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	APIKey      string `gorm:"type:text;not null"` // Upstream HIBP API key.
	Description string `gorm:"type:text"`          // Optional label or notes.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
