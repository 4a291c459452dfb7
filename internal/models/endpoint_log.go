package models

import "time"

// EndpointLog records the outcome of one handled request. Rows are append
// only; the key and group references are nullable so the record survives
// deletion of either referent.
type EndpointLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	APIKeyID *uint64 `gorm:"index"` // Calling API key, nil if anonymous or deleted.
	GroupID  *uint64 `gorm:"index"` // Owning group, nil if anonymous or deleted.

	Endpoint   string `gorm:"type:text;not null;index"` // Route name, e.g. "breached-domain".
	StatusCode int    `gorm:"not null"`                 // Final outward status code.
	Success    bool   `gorm:"not null"`                 // True iff status in [200,400).

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
