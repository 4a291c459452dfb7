package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dtusecurity/pwned-proxy/internal/models"
	"github.com/dtusecurity/pwned-proxy/internal/security"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// APIKeyHandler manages tenant API keys. Create and Rotate are the only
// places a plaintext secret ever leaves the system; only the digest is
// stored.
type APIKeyHandler struct {
	db *gorm.DB
}

// NewAPIKeyHandler constructs an APIKeyHandler.
func NewAPIKeyHandler(db *gorm.DB) *APIKeyHandler {
	return &APIKeyHandler{db: db}
}

// Create issues a new API key for a group and returns the plaintext once.
func (h *APIKeyHandler) Create(c *gin.Context) {
	// body holds the create request payload.
	var body struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		GroupID     uint64   `json:"group_id"`
		Domains     []string `json:"domains"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	if body.GroupID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing group_id"})
		return
	}

	var group models.Group
	if errFind := h.db.WithContext(c.Request.Context()).First(&group, body.GroupID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create api key failed"})
		return
	}

	domains, errDomains := h.resolveDomains(c, body.Domains)
	if errDomains != nil {
		return
	}

	secret, errGenerate := security.GenerateAPIKey()
	if errGenerate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate api key failed"})
		return
	}
	row := models.APIKey{
		Name:        name,
		Description: strings.TrimSpace(body.Description),
		GroupID:     group.ID,
		KeyDigest:   security.HashAPIKey(secret),
		Domains:     domains,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&row).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create api key failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":       row.ID,
		"name":     row.Name,
		"group_id": row.GroupID,
		"key":      secret,
	})
}

// List returns all API keys with their entitled domains. Digests and
// secrets are never included.
func (h *APIKeyHandler) List(c *gin.Context) {
	var rows []models.APIKey
	if errFind := h.db.WithContext(c.Request.Context()).
		Preload("Domains").
		Order("created_at DESC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list api keys failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		domains := make([]string, 0, len(row.Domains))
		for _, domain := range row.Domains {
			domains = append(domains, domain.Name)
		}
		out = append(out, gin.H{
			"id":          row.ID,
			"name":        row.Name,
			"description": row.Description,
			"group_id":    row.GroupID,
			"domains":     domains,
			"created_at":  row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": out})
}

// Rotate replaces a key's digest with a freshly generated secret and
// returns the new plaintext once. The old secret stops working
// immediately.
func (h *APIKeyHandler) Rotate(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	secret, errGenerate := security.GenerateAPIKey()
	if errGenerate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate api key failed"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("key_digest", security.HashAPIKey(secret))
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rotate api key failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":  id,
		"key": secret,
	})
}

// SetDomains replaces a key's entitled domain set.
func (h *APIKeyHandler) SetDomains(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	// body holds the replacement domain list.
	var body struct {
		Domains []string `json:"domains"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var row models.APIKey
	if errFind := h.db.WithContext(c.Request.Context()).First(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update api key failed"})
		return
	}

	domains, errDomains := h.resolveDomains(c, body.Domains)
	if errDomains != nil {
		return
	}
	if errReplace := h.db.WithContext(c.Request.Context()).
		Model(&row).
		Association("Domains").
		Replace(domains); errReplace != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update api key failed"})
		return
	}

	names := make([]string, 0, len(domains))
	for _, domain := range domains {
		names = append(names, domain.Name)
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      row.ID,
		"domains": names,
	})
}

// Delete removes an API key and its domain grants.
func (h *APIKeyHandler) Delete(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errGrants := tx.Exec("DELETE FROM api_key_domains WHERE api_key_id = ?", id).Error; errGrants != nil {
			return errGrants
		}
		res := tx.Delete(&models.APIKey{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete api key failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// resolveDomains loads catalog rows for the given names. A name outside
// the synced catalog is a client error: keys can only be entitled to
// domains the upstream subscription confirms. Writes the error response
// itself and returns a non-nil error when resolution fails.
func (h *APIKeyHandler) resolveDomains(c *gin.Context, names []string) ([]models.Domain, error) {
	if len(names) == 0 {
		return nil, nil
	}
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			cleaned = append(cleaned, name)
		}
	}

	var rows []models.Domain
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("name IN ?", cleaned).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve domains failed"})
		return nil, errFind
	}
	if len(rows) != len(cleaned) {
		known := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			known[row.Name] = struct{}{}
		}
		for _, name := range cleaned {
			if _, ok := known[name]; !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown domain: " + name})
				return nil, errors.New("unknown domain")
			}
		}
	}
	return rows, nil
}
