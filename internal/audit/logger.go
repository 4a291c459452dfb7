// Package audit persists per-request outcome records.
package audit

import (
	"context"
	"time"

	"github.com/dtusecurity/pwned-proxy/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// writeTimeout bounds the audit insert so a slow database cannot stall
// the response path.
const writeTimeout = 5 * time.Second

// Logger appends EndpointLog rows. Failures are logged and swallowed;
// auditing never changes the outcome of the request being audited.
type Logger struct {
	db *gorm.DB
}

// NewLogger constructs a Logger backed by GORM.
func NewLogger(db *gorm.DB) *Logger { return &Logger{db: db} }

// Record writes one audit row for a handled request. key may be nil for
// anonymous requests. statusCode is the final outward status after any
// rewriting.
func (l *Logger) Record(key *models.APIKey, endpoint string, statusCode int) {
	if l == nil || l.db == nil {
		return
	}

	dbCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	row := models.EndpointLog{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Success:    statusCode >= 200 && statusCode < 400,
		CreatedAt:  time.Now().UTC(),
	}
	if key != nil {
		keyID := key.ID
		groupID := key.GroupID
		row.APIKeyID = &keyID
		row.GroupID = &groupID
	}

	if errCreate := l.db.WithContext(dbCtx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).Warn("audit: failed to persist endpoint log")
	}
}
