package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dtusecurity/pwned-proxy/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GroupHandler manages tenant groups.
type GroupHandler struct {
	db *gorm.DB
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(db *gorm.DB) *GroupHandler {
	return &GroupHandler{db: db}
}

// Create inserts a new group.
func (h *GroupHandler) Create(c *gin.Context) {
	// body holds the create request payload.
	var body struct {
		Name string `json:"name"`
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

	row := models.Group{Name: name}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&row).Error; errCreate != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "create group failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":   row.ID,
		"name": row.Name,
	})
}

// List returns all groups with their key counts.
func (h *GroupHandler) List(c *gin.Context) {
	var rows []models.Group
	if errFind := h.db.WithContext(c.Request.Context()).Order("name ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list groups failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		var keyCount int64
		if errCount := h.db.WithContext(c.Request.Context()).Model(&models.APIKey{}).
			Where("group_id = ?", row.ID).
			Count(&keyCount).Error; errCount != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list groups failed"})
			return
		}
		out = append(out, gin.H{
			"id":         row.ID,
			"name":       row.Name,
			"key_count":  keyCount,
			"created_at": row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"groups": out})
}

// Delete removes a group and, by cascade, its API keys.
func (h *GroupHandler) Delete(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var keyIDs []uint64
		if errFind := tx.Model(&models.APIKey{}).
			Where("group_id = ?", id).
			Pluck("id", &keyIDs).Error; errFind != nil {
			return errFind
		}
		if len(keyIDs) > 0 {
			if errGrants := tx.Exec("DELETE FROM api_key_domains WHERE api_key_id IN ?", keyIDs).Error; errGrants != nil {
				return errGrants
			}
			if errKeys := tx.Where("group_id = ?", id).Delete(&models.APIKey{}).Error; errKeys != nil {
				return errKeys
			}
		}
		res := tx.Delete(&models.Group{}, id)
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
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete group failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
