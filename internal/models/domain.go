package models

import "time"

// Domain is one entry of the upstream subscription catalog. The table is
// owned by the catalog syncer (full-replace semantics); API keys reference
// domains but never mutate them.
type Domain struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name string `gorm:"type:text;not null;uniqueIndex"` // Domain name, e.g. "dtu.dk".

	PwnCount                   *int64 `gorm:""` // Upstream-reported breach count.
	PwnCountExcludingSpamLists *int64 `gorm:""` // Breach count excluding spam lists.

	PwnCountExcludingSpamListsAtLastSubscriptionRenewal *int64 `gorm:""` // Count at last renewal.

	NextSubscriptionRenewal *time.Time `gorm:""` // Next renewal timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
