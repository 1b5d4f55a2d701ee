package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ExtensionKindPlugin = "plugin"
	ExtensionKindTheme  = "theme"
)

// Extension records an installed plugin or theme together with a snapshot of
// its manifest at install time.
type Extension struct {
	BaseModel

	Kind        string         `gorm:"size:16;not null;uniqueIndex:idx_extension_kind_slug" json:"kind"`
	Slug        string         `gorm:"size:64;not null;uniqueIndex:idx_extension_kind_slug" json:"slug"`
	Name        string         `gorm:"not null" json:"name"`
	Version     string         `gorm:"size:64" json:"version"`
	Path        string         `json:"path"`
	Manifest    datatypes.JSON `json:"manifest"`
	Source      string         `gorm:"size:32;default:'local'" json:"source"`
	InstalledAt time.Time      `json:"installed_at"`
}

// PluginMigration tracks SQL migration files already applied for a plugin.
type PluginMigration struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Plugin    string    `gorm:"size:64;not null;uniqueIndex:idx_plugin_migration" json:"plugin"`
	Migration string    `gorm:"size:255;not null;uniqueIndex:idx_plugin_migration" json:"migration"`
	AppliedAt time.Time `json:"applied_at"`
}
