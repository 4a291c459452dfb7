package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dtusecurity/pwned-proxy/internal/models"
	"github.com/dtusecurity/pwned-proxy/internal/security"
	"gorm.io/gorm"
)

// Header names accepted for the tenant secret. The first one present wins.
var credentialHeaders = []string{"X-API-Key", "Hibp-Api-Key"}

// Authenticator resolves inbound credentials against stored digests. It
// performs reads only and keeps no per-request state.
type Authenticator struct {
	db *gorm.DB
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(db *gorm.DB) *Authenticator {
	return &Authenticator{db: db}
}

// Authenticate resolves the request headers to a stored API key. A missing
// credential header yields (nil, nil); callers decide whether the endpoint
// tolerates an anonymous caller. A present but unrecognized credential
// yields ErrInvalidAPIKey.
func (a *Authenticator) Authenticate(ctx context.Context, header http.Header) (*models.APIKey, error) {
	if a == nil || a.db == nil {
		return nil, fmt.Errorf("access: authenticator not initialized")
	}

	raw := ""
	for _, name := range credentialHeaders {
		if v := strings.TrimSpace(header.Get(name)); v != "" {
			raw = v
			break
		}
	}
	if raw == "" {
		return nil, nil
	}

	digest := security.HashAPIKey(raw)
	var key models.APIKey
	errFind := a.db.WithContext(ctx).Where("key_digest = ?", digest).First(&key).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("access: lookup api key: %w", errFind)
	}
	// The indexed lookup only narrows the candidate; the constant-time
	// compare decides, so a collation-widened match cannot authenticate.
	if !security.DigestEqual(key.KeyDigest, digest) {
		return nil, ErrInvalidAPIKey
	}
	return &key, nil
}
