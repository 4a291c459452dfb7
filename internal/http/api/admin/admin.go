// Package admin wires the management API routes.
package admin

import (
	"net/http"
	"strings"

	"github.com/dtusecurity/pwned-proxy/internal/config"
	"github.com/dtusecurity/pwned-proxy/internal/domainsync"
	"github.com/dtusecurity/pwned-proxy/internal/hibp"
	handlers "github.com/dtusecurity/pwned-proxy/internal/http/api/admin/handlers"
	"github.com/dtusecurity/pwned-proxy/internal/models"
	"github.com/dtusecurity/pwned-proxy/internal/security"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers the management routes, middleware, and
// handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, keys *hibp.KeyProvider, syncer *domainsync.Syncer) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	groupHandler := handlers.NewGroupHandler(db)
	authed.POST("/groups", groupHandler.Create)
	authed.GET("/groups", groupHandler.List)
	authed.DELETE("/groups/:id", groupHandler.Delete)

	apiKeyHandler := handlers.NewAPIKeyHandler(db)
	authed.POST("/api-keys", apiKeyHandler.Create)
	authed.GET("/api-keys", apiKeyHandler.List)
	authed.POST("/api-keys/:id/rotate", apiKeyHandler.Rotate)
	authed.PUT("/api-keys/:id/domains", apiKeyHandler.SetDomains)
	authed.DELETE("/api-keys/:id", apiKeyHandler.Delete)

	domainHandler := handlers.NewDomainHandler(db, syncer)
	authed.GET("/domains", domainHandler.List)
	authed.POST("/domains/sync", domainHandler.Sync)

	hibpKeyHandler := handlers.NewHIBPKeyHandler(db, keys)
	authed.GET("/hibp-key", hibpKeyHandler.Get)
	authed.PUT("/hibp-key", hibpKeyHandler.Set)

	logHandler := handlers.NewEndpointLogHandler(db)
	authed.GET("/logs", logHandler.List)

	settingHandler := handlers.NewSettingHandler(db)
	authed.POST("/settings", settingHandler.Create)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Update)
	authed.DELETE("/settings/:key", settingHandler.Delete)
}

// adminAuthMiddleware validates admin JWTs and loads admin context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Next()
	}
}
