package handlers

import (
	"net/http"
	"strings"

	"github.com/dtusecurity/pwned-proxy/internal/db"
	"github.com/dtusecurity/pwned-proxy/internal/domainsync"
	"github.com/dtusecurity/pwned-proxy/internal/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DomainHandler exposes the synced domain catalog.
type DomainHandler struct {
	db     *gorm.DB
	syncer *domainsync.Syncer
}

// NewDomainHandler constructs a DomainHandler. syncer may be nil when no
// upstream sync is configured.
func NewDomainHandler(db *gorm.DB, syncer *domainsync.Syncer) *DomainHandler {
	return &DomainHandler{db: db, syncer: syncer}
}

// List returns the domain catalog, optionally narrowed by a
// case-insensitive name substring.
func (h *DomainHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context())
	if name := strings.TrimSpace(c.Query("name")); name != "" {
		pattern := db.NormalizeLikePattern(h.db, "%"+name+"%")
		q = q.Where(db.CaseInsensitiveLikeExpr(h.db, "name"), pattern)
	}

	var rows []models.Domain
	if errFind := q.Order("name ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list domains failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":                             row.ID,
			"name":                           row.Name,
			"pwn_count":                      row.PwnCount,
			"pwn_count_excluding_spam_lists": row.PwnCountExcludingSpamLists,
			"next_subscription_renewal":      row.NextSubscriptionRenewal,
			"updated_at":                     row.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"domains": out})
}

// Sync triggers one catalog sync pass immediately.
func (h *DomainHandler) Sync(c *gin.Context) {
	if h.syncer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "domain sync not configured"})
		return
	}
	if errSync := h.syncer.SyncOnce(c.Request.Context()); errSync != nil {
		log.WithError(errSync).Warn("admin: manual domain sync failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "domain sync failed"})
		return
	}

	var count int64
	if errCount := h.db.WithContext(c.Request.Context()).Model(&models.Domain{}).Count(&count).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count domains failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": true, "domains": count})
}
