package hibp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dtusecurity/pwned-proxy/internal/models"
	"gorm.io/gorm"
)

// defaultKeyTTL bounds how long the shared upstream key is served from
// cache before a fresh read.
const defaultKeyTTL = 5 * time.Minute

// ErrKeyNotConfigured indicates no upstream API key record exists yet.
var ErrKeyNotConfigured = errors.New("hibp: upstream api key not configured")

// KeyProvider caches the single shared upstream key with a bounded TTL.
// Writers of the key record must call Invalidate so the next read reloads.
type KeyProvider struct {
	db  *gorm.DB
	ttl time.Duration

	mu       sync.RWMutex
	cached   string
	loadedAt time.Time
	nowFn    func() time.Time
}

// NewKeyProvider constructs a KeyProvider with the default TTL.
func NewKeyProvider(db *gorm.DB) *KeyProvider {
	return &KeyProvider{db: db, ttl: defaultKeyTTL, nowFn: time.Now}
}

// Get returns the shared upstream key, reading from cache when fresh.
func (p *KeyProvider) Get(ctx context.Context) (string, error) {
	if p == nil || p.db == nil {
		return "", fmt.Errorf("hibp: key provider not initialized")
	}

	now := p.nowFn()
	p.mu.RLock()
	cached, loadedAt := p.cached, p.loadedAt
	p.mu.RUnlock()
	if cached != "" && now.Sub(loadedAt) < p.ttl {
		return cached, nil
	}

	var row models.HIBPKey
	errFind := p.db.WithContext(ctx).Order("created_at DESC").First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", ErrKeyNotConfigured
		}
		return "", fmt.Errorf("hibp: load upstream key: %w", errFind)
	}
	key := strings.TrimSpace(row.APIKey)
	if key == "" {
		return "", ErrKeyNotConfigured
	}

	p.mu.Lock()
	p.cached = key
	p.loadedAt = now
	p.mu.Unlock()
	return key, nil
}

// Invalidate drops the cached key immediately.
func (p *KeyProvider) Invalidate() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.cached = ""
	p.loadedAt = time.Time{}
	p.mu.Unlock()
}
