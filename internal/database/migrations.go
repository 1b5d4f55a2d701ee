package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/models"
	"github.com/exiloncms/exiloncms/internal/permissions"
)

// Role identifiers seeded on first start.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.Setting{},
		&models.Extension{},
		&models.PluginMigration{},
		&models.NavbarElement{},
		&models.Notification{},
		&models.ActionLog{},
		&models.Post{},
		&models.Page{},
		&models.Server{},
		&models.Translation{},
		&models.CacheEntry{},
	)
}

// DefaultSettings are inserted when missing. Existing values are never overwritten.
var DefaultSettings = map[string]string{
	SettingSiteName:           "ExilonCMS",
	SettingSiteURL:            "http://localhost:8000",
	SettingSiteLocale:         "en",
	SettingTheme:              "",
	SettingEnabledPlugins:     "[]",
	SettingMaintenanceEnabled: "false",
}

// SeedData populates permissions, default roles and default settings.
func SeedData(db *gorm.DB) error {
	ctx := context.Background()

	if err := permissions.Sync(ctx, db); err != nil {
		return err
	}

	roles := []models.Role{
		{
			BaseModel:   models.BaseModel{ID: RoleAdmin},
			Name:        "Administrator",
			Description: "Full access to the admin panel",
			Color:       "#e10d11",
			Power:       100,
			IsSystem:    true,
		},
		{
			BaseModel:   models.BaseModel{ID: RoleMember},
			Name:        "Member",
			Description: "Registered member",
			Color:       "#718096",
			IsSystem:    true,
		},
	}
	for _, role := range roles {
		if err := db.Where(models.Role{BaseModel: models.BaseModel{ID: role.ID}}).Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", role.ID, err)
		}
	}

	adminPerms := make([]string, 0)
	for _, perm := range permissions.List() {
		adminPerms = append(adminPerms, perm.ID)
	}
	if err := AssignRolePermissions(db, RoleAdmin, adminPerms); err != nil {
		return fmt.Errorf("seed admin permissions: %w", err)
	}

	for key, value := range DefaultSettings {
		record := models.Setting{Key: key, Value: value}
		if err := db.Where(models.Setting{Key: key}).Attrs(record).FirstOrCreate(&models.Setting{}).Error; err != nil {
			return fmt.Errorf("seed setting %s: %w", key, err)
		}
	}

	return nil
}

// AssignRolePermissions attaches the given permissions to a role, skipping
// those already granted.
func AssignRolePermissions(db *gorm.DB, roleID string, permissionIDs []string) error {
	if len(permissionIDs) == 0 {
		return nil
	}

	var role models.Role
	if err := db.Preload("Permissions").Where("id = ?", roleID).First(&role).Error; err != nil {
		return err
	}

	current := make(map[string]struct{}, len(role.Permissions))
	for _, perm := range role.Permissions {
		current[perm.ID] = struct{}{}
	}

	var missing []string
	for _, id := range permissionIDs {
		if _, ok := current[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var perms []models.Permission
	if err := db.Where("id IN ?", missing).Find(&perms).Error; err != nil {
		return err
	}
	if len(perms) == 0 {
		return nil
	}
	return db.Model(&role).Association("Permissions").Append(perms)
}
