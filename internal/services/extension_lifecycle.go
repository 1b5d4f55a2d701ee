package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/events"
	"github.com/exiloncms/exiloncms/internal/extensions"
	"github.com/exiloncms/exiloncms/internal/models"
	"github.com/exiloncms/exiloncms/internal/realtime"
)

// Sources recorded on extension rows.
const (
	SourceLocal       = "local"
	SourceUpload      = "upload"
	SourceMarketplace = "marketplace"
	SourceUpdate      = "update"
)

// Downloader opens remote archives.
type Downloader interface {
	Download(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// CacheInvalidator is notified after any change that alters the set of
// enabled or installed extensions.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// ExtensionDeps bundles the collaborators shared by PluginService and ThemeService.
type ExtensionDeps struct {
	DB          *gorm.DB
	Registry    *extensions.Registry
	Installer   *extensions.Installer
	Settings    *SettingsService
	ActionLogs  *ActionLogService
	Publisher   events.Publisher
	Hub         *realtime.Hub
	Downloader  Downloader
	CoreVersion string
}

func (d ExtensionDeps) validate(service string) error {
	switch {
	case d.DB == nil:
		return fmt.Errorf("%s: db is required", service)
	case d.Registry == nil:
		return fmt.Errorf("%s: registry is required", service)
	case d.Installer == nil:
		return fmt.Errorf("%s: installer is required", service)
	case d.Settings == nil:
		return fmt.Errorf("%s: settings service is required", service)
	}
	return nil
}

// ExtensionDTO is the API view of a plugin or theme.
type ExtensionDTO struct {
	ID                string                    `json:"id"`
	Kind              string                    `json:"kind"`
	Name              string                    `json:"name"`
	Version           string                    `json:"version"`
	Description       string                    `json:"description,omitempty"`
	Authors           []string                  `json:"authors,omitempty"`
	URL               string                    `json:"url,omitempty"`
	Enabled           bool                      `json:"enabled"`
	Installed         bool                      `json:"installed"`
	Missing           bool                      `json:"missing,omitempty"`
	Compatible        bool                      `json:"compatible"`
	Source            string                    `json:"source,omitempty"`
	InstalledAt       *time.Time                `json:"installed_at,omitempty"`
	Error             string                    `json:"error,omitempty"`
	AdminSections     []extensions.AdminSection `json:"admin_sections,omitempty"`
	PendingMigrations []string                  `json:"pending_migrations,omitempty"`
}

func newExtensionDTO(info *extensions.Info, coreVersion string) ExtensionDTO {
	dto := ExtensionDTO{
		ID:         info.ID,
		Kind:       string(info.Kind),
		Name:       info.ID,
		Compatible: true,
		Error:      info.ErrorMessage(),
	}
	if m := info.Manifest; m != nil {
		dto.Name = m.Name
		dto.Version = m.Version
		dto.Description = m.Description
		dto.Authors = m.Authors
		dto.URL = m.URL
		dto.AdminSections = m.AdminSections
		dto.Compatible = m.SupportsCore(coreVersion)
	}
	return dto
}

func applyRecord(dto *ExtensionDTO, record models.Extension) {
	dto.Installed = true
	dto.Source = record.Source
	installedAt := record.InstalledAt
	dto.InstalledAt = &installedAt
}

func missingDTO(record models.Extension) ExtensionDTO {
	dto := ExtensionDTO{
		ID:      record.Slug,
		Kind:    record.Kind,
		Name:    record.Name,
		Version: record.Version,
		Missing: true,
		Error:   "extension directory is missing",
	}
	applyRecord(&dto, record)
	return dto
}

func loadExtensionRecords(ctx context.Context, db *gorm.DB, kind extensions.Kind) (map[string]models.Extension, error) {
	var rows []models.Extension
	if err := db.WithContext(ctx).Where(&models.Extension{Kind: string(kind)}).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]models.Extension, len(rows))
	for _, row := range rows {
		out[row.Slug] = row
	}
	return out, nil
}

func upsertExtensionRecord(ctx context.Context, db *gorm.DB, manifest *extensions.Manifest, source string, now time.Time) error {
	var existing models.Extension
	err := db.WithContext(ctx).
		Where(&models.Extension{Kind: string(manifest.Kind), Slug: manifest.ID}).
		Take(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		record := models.Extension{
			Kind:        string(manifest.Kind),
			Slug:        manifest.ID,
			Name:        manifest.Name,
			Version:     manifest.Version,
			Path:        manifest.Path,
			Manifest:    encodeJSON(manifest),
			Source:      defaultIfEmpty(source, SourceLocal),
			InstalledAt: now,
		}
		return db.WithContext(ctx).Create(&record).Error
	case err != nil:
		return err
	}

	updates := map[string]any{
		"name":     manifest.Name,
		"version":  manifest.Version,
		"path":     manifest.Path,
		"manifest": encodeJSON(manifest),
	}
	if source != "" && source != SourceUpdate {
		updates["source"] = source
	}
	return db.WithContext(ctx).Model(&existing).Updates(updates).Error
}

func deleteExtensionRecord(ctx context.Context, db *gorm.DB, kind extensions.Kind, id string) error {
	return db.WithContext(ctx).
		Where(&models.Extension{Kind: string(kind), Slug: id}).
		Delete(&models.Extension{}).Error
}

// lifecycleNotifier fans an event out to Kafka and to websocket admins.
type lifecycleNotifier struct {
	publisher events.Publisher
	hub       *realtime.Hub
	log       *zap.Logger
}

func (n lifecycleNotifier) emit(ctx context.Context, event events.Event) {
	if event.ActorID == "" {
		event.ActorID = actorID(ctx)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if n.publisher != nil {
		if err := n.publisher.Publish(ctx, event); err != nil && n.log != nil {
			n.log.Warn("lifecycle event not published", zap.String("type", event.Type), zap.Error(err))
		}
	}
	if n.hub != nil {
		n.hub.Broadcast(realtime.StreamExtensions, realtime.Message{Event: event.Type, Data: event})
	}
}

func runInvalidators(ctx context.Context, invalidators []CacheInvalidator) {
	for _, inv := range invalidators {
		if inv != nil {
			inv.Invalidate(ctx)
		}
	}
}

func normaliseExtensionID(id string) string {
	return strings.TrimSpace(id)
}
