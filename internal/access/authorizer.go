package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/dtusecurity/pwned-proxy/internal/models"
	"gorm.io/gorm"
)

// Authorizer checks a credential's domain entitlements. The entitlement set
// is loaded as a plain set per call; the authorizer, not the model, owns
// the query.
type Authorizer struct {
	db *gorm.DB
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer(db *gorm.DB) *Authorizer {
	return &Authorizer{db: db}
}

// EntitledDomains returns the set of domain names the key may query.
func (a *Authorizer) EntitledDomains(ctx context.Context, keyID uint64) (map[string]struct{}, error) {
	if a == nil || a.db == nil {
		return nil, fmt.Errorf("access: authorizer not initialized")
	}

	var names []string
	errFind := a.db.WithContext(ctx).Model(&models.Domain{}).
		Joins("JOIN api_key_domains ON api_key_domains.domain_id = domains.id").
		Where("api_key_domains.api_key_id = ?", keyID).
		Pluck("domains.name", &names).Error
	if errFind != nil {
		return nil, fmt.Errorf("access: load entitled domains: %w", errFind)
	}

	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set, nil
}

// Authorize allows iff target is in the key's entitled domain set. The
// match is exact and case sensitive against stored names.
func (a *Authorizer) Authorize(ctx context.Context, keyID uint64, target string) error {
	if a == nil || a.db == nil {
		return fmt.Errorf("access: authorizer not initialized")
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrDomainNotAllowed
	}

	var count int64
	errCount := a.db.WithContext(ctx).Model(&models.Domain{}).
		Joins("JOIN api_key_domains ON api_key_domains.domain_id = domains.id").
		Where("api_key_domains.api_key_id = ? AND domains.name = ?", keyID, target).
		Count(&count).Error
	if errCount != nil {
		return fmt.Errorf("access: check domain entitlement: %w", errCount)
	}
	if count == 0 {
		return ErrDomainNotAllowed
	}
	return nil
}
