// Package domainsync keeps the local domain catalog synced with the
// upstream subscription.
package domainsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dtusecurity/pwned-proxy/internal/hibp"
	"github.com/dtusecurity/pwned-proxy/internal/models"
	"github.com/dtusecurity/pwned-proxy/internal/settings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Syncer keeps the domains table synced with the upstream subscription
// catalog. Each pass is a full replace: domains the upstream no longer
// returns are removed locally.
type Syncer struct {
	db       *gorm.DB
	client   *hibp.Client
	interval time.Duration
	now      func() time.Time
}

// NewSyncer constructs a catalog syncer. The interval comes from DB
// settings, falling back to the daily default.
func NewSyncer(db *gorm.DB, client *hibp.Client) *Syncer {
	if db == nil || client == nil {
		return nil
	}
	return &Syncer{
		db:       db,
		client:   client,
		interval: loadSyncInterval(),
		now:      time.Now,
	}
}

// Start runs the sync loop in the background.
func (s *Syncer) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("domain catalog syncer started (interval=%s)", s.interval)
}

func (s *Syncer) run(ctx context.Context) {
	interval := s.interval
	if interval <= 0 {
		interval = time.Duration(settings.DefaultDomainSyncIntervalSeconds) * time.Second
	}

	if err := s.SyncOnce(ctx); err != nil {
		log.WithError(err).Warn("domain syncer: initial sync failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				log.WithError(err).Warn("domain syncer: sync failed")
			}
		}
	}
}

// SyncOnce fetches the subscription catalog and replaces the local table
// with it.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("domain syncer: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	resp, errFetch := s.client.Fetch(ctx, "subscribeddomains", nil)
	if errFetch != nil {
		return fmt.Errorf("domain syncer: fetch catalog: %w", errFetch)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("domain syncer: unexpected status %d", resp.StatusCode)
	}

	var entries []hibp.SubscribedDomain
	if errDecode := json.Unmarshal(resp.Body, &entries); errDecode != nil {
		return fmt.Errorf("domain syncer: decode catalog: %w", errDecode)
	}

	syncTime := s.now().UTC()
	if errStore := replaceCatalog(ctx, s.db, entries, syncTime); errStore != nil {
		return errStore
	}
	log.Infof("domain syncer: catalog synced (%d domains)", len(entries))
	return nil
}

// replaceCatalog upserts the fetched domains and removes the ones the
// upstream no longer returns, in one transaction.
func replaceCatalog(ctx context.Context, db *gorm.DB, entries []hibp.SubscribedDomain, syncTime time.Time) error {
	names := make([]string, 0, len(entries))

	errTx := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range entries {
			name := strings.ToLower(strings.TrimSpace(entry.DomainName))
			if name == "" {
				continue
			}
			names = append(names, name)

			row := models.Domain{
				Name:                       name,
				PwnCount:                   entry.PwnCount,
				PwnCountExcludingSpamLists: entry.PwnCountExcludingSpamLists,
				PwnCountExcludingSpamListsAtLastSubscriptionRenewal: entry.PwnCountExcludingSpamListsAtLastSubscriptionRenewal,
				NextSubscriptionRenewal:                             entry.NextSubscriptionRenewal,
				UpdatedAt:                                           syncTime,
			}
			if errUpsert := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"pwn_count",
					"pwn_count_excluding_spam_lists",
					"pwn_count_excluding_spam_lists_at_last_subscription_renewal",
					"next_subscription_renewal",
					"updated_at",
				}),
			}).Create(&row).Error; errUpsert != nil {
				return fmt.Errorf("domain syncer: upsert %q: %w", name, errUpsert)
			}
		}

		if len(names) == 0 {
			if errClear := tx.Where("1 = 1").Delete(&models.Domain{}).Error; errClear != nil {
				return fmt.Errorf("domain syncer: clear catalog: %w", errClear)
			}
			return nil
		}
		if errPrune := tx.Where("name NOT IN ?", names).Delete(&models.Domain{}).Error; errPrune != nil {
			return fmt.Errorf("domain syncer: prune catalog: %w", errPrune)
		}
		return nil
	})
	if errTx != nil {
		return errTx
	}
	return nil
}

// loadSyncInterval reads the sync interval from DB settings.
func loadSyncInterval() time.Duration {
	secs := settings.DefaultDomainSyncIntervalSeconds
	if raw, ok := settings.DBConfigValue(settings.DomainSyncIntervalSecondsKey); ok {
		if parsed, okParse := parsePositiveInt(raw); okParse {
			secs = parsed
		}
	}
	return time.Duration(secs) * time.Second
}

// parsePositiveInt accepts a JSON number or numeric string greater than zero.
func parsePositiveInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var asInt int
	if err := json.Unmarshal(raw, &asInt); err == nil {
		if asInt > 0 {
			return asInt, true
		}
		return 0, false
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(asString))
		if errParse == nil && parsed > 0 {
			return parsed, true
		}
	}
	return 0, false
}
