// Package app wires the service components and owns the server lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dtusecurity/pwned-proxy/internal/access"
	"github.com/dtusecurity/pwned-proxy/internal/audit"
	"github.com/dtusecurity/pwned-proxy/internal/config"
	"github.com/dtusecurity/pwned-proxy/internal/db"
	"github.com/dtusecurity/pwned-proxy/internal/domainsync"
	"github.com/dtusecurity/pwned-proxy/internal/hibp"
	adminapi "github.com/dtusecurity/pwned-proxy/internal/http/api/admin"
	proxyapi "github.com/dtusecurity/pwned-proxy/internal/http/api/proxy"
	"github.com/dtusecurity/pwned-proxy/internal/models"
	"github.com/dtusecurity/pwned-proxy/internal/ratelimit"
	"github.com/dtusecurity/pwned-proxy/internal/security"
	internalsettings "github.com/dtusecurity/pwned-proxy/internal/settings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds graceful shutdown after the context is canceled.
const shutdownTimeout = 10 * time.Second

// openAndMigrate resolves the DSN, opens the database, and runs
// migrations.
func openAndMigrate(cfg config.AppConfig) (*gorm.DB, string, error) {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, errDSN := config.LoadDatabaseDSN(configPath)
	if errDSN != nil {
		return nil, "", errDSN
	}
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return nil, "", errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, "", errMigrate
	}
	return conn, configPath, nil
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	_, _, err := openAndMigrate(cfg)
	return err
}

// SyncDomains runs one catalog sync pass and exits.
func SyncDomains(ctx context.Context, cfg config.AppConfig) error {
	conn, configPath, errOpen := openAndMigrate(cfg)
	if errOpen != nil {
		return errOpen
	}
	internalsettings.Bind(conn)

	keys := hibp.NewKeyProvider(conn)
	client := hibp.NewClient(config.LoadUpstreamBaseURL(configPath), keys)
	syncer := domainsync.NewSyncer(conn, client)
	if syncer == nil {
		return fmt.Errorf("app: build domain syncer")
	}
	return syncer.SyncOnce(ctx)
}

// CreateAdminUser creates a management console account.
func CreateAdminUser(cfg config.AppConfig, username, password string) error {
	conn, _, errOpen := openAndMigrate(cfg)
	if errOpen != nil {
		return errOpen
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("app: hash password: %w", errHash)
	}
	admin := models.Admin{
		Username:     username,
		PasswordHash: hashedPassword,
	}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("app: create admin: %w", errCreate)
	}
	return nil
}

// RunServer boots the relay with database-backed components and serves
// until the context is canceled. portOverride takes precedence over the
// config file and PORT when non-zero.
func RunServer(ctx context.Context, cfg config.AppConfig, portOverride int) error {
	conn, configPath, errOpen := openAndMigrate(cfg)
	if errOpen != nil {
		return errOpen
	}
	internalsettings.Bind(conn)

	keys := hibp.NewKeyProvider(conn)
	client := hibp.NewClient(config.LoadUpstreamBaseURL(configPath), keys)
	limits := ratelimit.NewManager(nil, nil, nil)
	auditLogger := audit.NewLogger(conn)
	authenticator := access.NewAuthenticator(conn)
	authorizer := access.NewAuthorizer(conn)

	jwtConfig, _ := config.LoadJWTConfig(configPath)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	dispatcher := proxyapi.NewDispatcher(conn, authenticator, authorizer, limits, client, auditLogger)
	dispatcher.Register(engine.Group("/api/v3"))

	syncer := domainsync.NewSyncer(conn, client)
	adminapi.RegisterAdminRoutes(engine, conn, jwtConfig, keys, syncer)
	if syncer != nil {
		syncer.Start(ctx)
	}

	port := portOverride
	if port == 0 {
		port = config.LoadServerPort(configPath)
	}
	server := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s (config=%s)", server.Addr, configPath)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("app: shutdown: %w", errShutdown)
		}
		return nil
	case errServe := <-errCh:
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", errServe)
		}
		return nil
	}
}
