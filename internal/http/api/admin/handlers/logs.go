package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dtusecurity/pwned-proxy/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultLogPageSize = 50
	maxLogPageSize     = 500
)

// EndpointLogHandler exposes the audit trail, newest first.
type EndpointLogHandler struct {
	db *gorm.DB
}

// NewEndpointLogHandler constructs an EndpointLogHandler.
func NewEndpointLogHandler(db *gorm.DB) *EndpointLogHandler {
	return &EndpointLogHandler{db: db}
}

// List returns a page of audit records. Supported query parameters:
// page, page_size, endpoint, api_key_id, group_id, success.
func (h *EndpointLogHandler) List(c *gin.Context) {
	page := parseQueryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := parseQueryInt(c, "page_size", defaultLogPageSize)
	if pageSize < 1 {
		pageSize = defaultLogPageSize
	}
	if pageSize > maxLogPageSize {
		pageSize = maxLogPageSize
	}

	q := h.db.WithContext(c.Request.Context()).Model(&models.EndpointLog{})
	if endpoint := strings.TrimSpace(c.Query("endpoint")); endpoint != "" {
		q = q.Where("endpoint = ?", endpoint)
	}
	if rawID := strings.TrimSpace(c.Query("api_key_id")); rawID != "" {
		id, errParse := strconv.ParseUint(rawID, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid api_key_id"})
			return
		}
		q = q.Where("api_key_id = ?", id)
	}
	if rawID := strings.TrimSpace(c.Query("group_id")); rawID != "" {
		id, errParse := strconv.ParseUint(rawID, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group_id"})
			return
		}
		q = q.Where("group_id = ?", id)
	}
	if rawSuccess := strings.TrimSpace(c.Query("success")); rawSuccess != "" {
		success, errParse := strconv.ParseBool(rawSuccess)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid success"})
			return
		}
		q = q.Where("success = ?", success)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count logs failed"})
		return
	}

	var rows []models.EndpointLog
	if errFind := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list logs failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":          row.ID,
			"api_key_id":  row.APIKeyID,
			"group_id":    row.GroupID,
			"endpoint":    row.Endpoint,
			"status_code": row.StatusCode,
			"success":     row.Success,
			"created_at":  row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":      out,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// parseQueryInt reads an integer query parameter with a fallback.
func parseQueryInt(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	parsed, errParse := strconv.Atoi(raw)
	if errParse != nil {
		return fallback
	}
	return parsed
}
