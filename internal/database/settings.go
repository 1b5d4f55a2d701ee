package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/models"
)

// Well-known setting keys.
const (
	SettingEnabledPlugins     = "enabled_plugins"
	SettingTheme              = "theme"
	SettingSiteName           = "site.name"
	SettingSiteURL            = "site.url"
	SettingSiteLocale         = "site.locale"
	SettingInstalledAt        = "installed_at"
	SettingMaintenanceEnabled = "maintenance.enabled"
)

// GetSetting retrieves a setting by key. Returns an empty string when not found.
func GetSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil
	}

	var setting models.Setting
	err := db.WithContext(ctx).Where(&models.Setting{Key: key}).Take(&setting).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return "", nil
	}
	return "", fmt.Errorf("settings: get %q: %w", key, err)
}

// UpsertSetting stores or updates a setting value.
func UpsertSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("settings: key is required")
	}

	record := models.Setting{Key: key, Value: value}
	if err := db.WithContext(ctx).
		Where(&models.Setting{Key: key}).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("settings: upsert %q: %w", key, err)
	}
	return nil
}
