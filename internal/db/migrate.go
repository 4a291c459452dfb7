package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dtusecurity/pwned-proxy/internal/models"
	internalsettings "github.com/dtusecurity/pwned-proxy/internal/settings"
	"gorm.io/gorm"
)

// Migrate applies the schema and seeds runtime settings.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.Group{},
		&models.Domain{},
		&models.APIKey{},
		&models.HIBPKey{},
		&models.EndpointLog{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errSeed := ensureIntSetting(conn, internalsettings.RateLimitKey, internalsettings.DefaultRateLimit); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureIntSetting(conn, internalsettings.RateLimitWindowSecondsKey, internalsettings.DefaultRateLimitWindowSeconds); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureIntSetting(conn, internalsettings.DomainSyncIntervalSecondsKey, internalsettings.DefaultDomainSyncIntervalSeconds); errSeed != nil {
		return errSeed
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_endpoint_logs_api_key_id_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_endpoint_logs_api_key_id_created_at
				ON endpoint_logs (api_key_id, created_at DESC)
			`,
		},
		{
			name: "idx_endpoint_logs_group_id_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_endpoint_logs_group_id_created_at
				ON endpoint_logs (group_id, created_at DESC)
			`,
		},
		{
			name: "idx_endpoint_logs_endpoint_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_endpoint_logs_endpoint_created_at
				ON endpoint_logs (endpoint, created_at DESC)
			`,
		},
		{
			name: "idx_api_key_domains_domain_id",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_api_key_domains_domain_id
				ON api_key_domains (domain_id)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return nil
}

// ensureIntSetting ensures an integer setting exists and defaults when empty.
func ensureIntSetting(conn *gorm.DB, key string, value int) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}

	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      json.RawMessage(payload),
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     payload,
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
