package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dtusecurity/pwned-proxy/internal/hibp"
	"github.com/dtusecurity/pwned-proxy/internal/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HIBPKeyHandler manages the single shared upstream API key record.
type HIBPKeyHandler struct {
	db   *gorm.DB
	keys *hibp.KeyProvider
}

// NewHIBPKeyHandler constructs a HIBPKeyHandler.
func NewHIBPKeyHandler(db *gorm.DB, keys *hibp.KeyProvider) *HIBPKeyHandler {
	return &HIBPKeyHandler{db: db, keys: keys}
}

// Get returns the configured key, masked to its last four characters.
func (h *HIBPKeyHandler) Get(c *gin.Context) {
	var row models.HIBPKey
	errFind := h.db.WithContext(c.Request.Context()).Order("created_at DESC").First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not configured"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load key failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          row.ID,
		"key":         maskKey(row.APIKey),
		"description": row.Description,
		"updated_at":  row.UpdatedAt,
	})
}

// Set replaces the shared upstream key. The table keeps a single row; the
// client cache is invalidated so the new key takes effect immediately.
func (h *HIBPKeyHandler) Set(c *gin.Context) {
	// body holds the replacement key payload.
	var body struct {
		Key         string `json:"key"`
		Description string `json:"description"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	key := strings.TrimSpace(body.Key)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing key"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errClear := tx.Where("1 = 1").Delete(&models.HIBPKey{}).Error; errClear != nil {
			return errClear
		}
		row := models.HIBPKey{
			APIKey:      key,
			Description: strings.TrimSpace(body.Description),
		}
		return tx.Create(&row).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store key failed"})
		return
	}
	h.keys.Invalidate()
	log.WithFields(log.Fields{
		"admin_id": c.GetUint64("adminID"),
		"admin":    c.GetString("adminUsername"),
	}).Info("admin: upstream api key replaced")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// maskKey hides all but the last four characters of a key.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "····"
	}
	return strings.Repeat("·", 8) + key[len(key)-4:]
}
