package settings

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dtusecurity/pwned-proxy/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// snapshotTTL bounds how stale the settings snapshot may get before a
// reload is attempted.
const snapshotTTL = 2 * time.Second

var store struct {
	mu       sync.RWMutex
	conn     *gorm.DB
	values   map[string]json.RawMessage
	loadedAt time.Time
	nowFn    func() time.Time
}

// Bind attaches the settings store to a database connection and loads the
// first snapshot.
func Bind(conn *gorm.DB) {
	store.mu.Lock()
	store.conn = conn
	store.values = nil
	store.loadedAt = time.Time{}
	store.mu.Unlock()
	refreshSnapshot()
}

// DBConfigValue returns the raw JSON value for a settings key, refreshing
// the snapshot when it has expired. The second return reports presence.
func DBConfigValue(key string) (json.RawMessage, bool) {
	store.mu.RLock()
	expired := now().Sub(store.loadedAt) > snapshotTTL
	raw, ok := store.values[key]
	store.mu.RUnlock()

	if !expired {
		return raw, ok
	}
	refreshSnapshot()

	store.mu.RLock()
	raw, ok = store.values[key]
	store.mu.RUnlock()
	return raw, ok
}

// Invalidate drops the current snapshot so the next read reloads.
func Invalidate() {
	store.mu.Lock()
	store.loadedAt = time.Time{}
	store.mu.Unlock()
}

func refreshSnapshot() {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.conn == nil {
		return
	}

	var rows []models.Setting
	if errFind := store.conn.Find(&rows).Error; errFind != nil {
		log.WithError(errFind).Warn("settings: snapshot refresh failed")
		// Keep serving the stale snapshot rather than dropping values.
		store.loadedAt = now()
		return
	}

	values := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		if row.Key == "" || len(row.Value) == 0 {
			continue
		}
		values[row.Key] = json.RawMessage(row.Value)
	}
	store.values = values
	store.loadedAt = now()
}

func now() time.Time {
	if store.nowFn != nil {
		return store.nowFn()
	}
	return time.Now()
}
