package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/auditctx"
	"github.com/exiloncms/exiloncms/internal/models"
)

// Action names recorded by the lifecycle services.
const (
	ActionPluginEnable     = "plugin.enable"
	ActionPluginDisable    = "plugin.disable"
	ActionPluginInstall    = "plugin.install"
	ActionPluginUpdate     = "plugin.update"
	ActionPluginUninstall  = "plugin.uninstall"
	ActionThemeActivate    = "theme.activate"
	ActionThemeDeactivate  = "theme.deactivate"
	ActionThemeInstall     = "theme.install"
	ActionThemeUpdate      = "theme.update"
	ActionThemeUninstall   = "theme.uninstall"
	ActionThemeConfigure   = "theme.configure"
	ActionSettingsUpdate   = "settings.update"
	ActionBackupCreate     = "backup.create"
	ActionBackupDelete     = "backup.delete"
	ActionBackupImport     = "backup.import"
	ActionDatabaseOptimize = "database.optimize"
	ActionUserCreate       = "user.create"
	ActionUserUpdate       = "user.update"
	ActionUserDelete       = "user.delete"
	ActionUserRoles        = "user.set_roles"
	ActionRoleCreate       = "role.create"
	ActionRoleUpdate       = "role.update"
	ActionRoleDelete       = "role.delete"
	ActionPostCreate       = "post.create"
	ActionPostUpdate       = "post.update"
	ActionPostDelete       = "post.delete"
	ActionPageCreate       = "page.create"
	ActionPageUpdate       = "page.update"
	ActionPageDelete       = "page.delete"
	ActionNavbarUpdate     = "navbar.update"
	ActionServerCreate     = "server.create"
	ActionServerUpdate     = "server.update"
	ActionServerDelete     = "server.delete"
	ActionTranslationSet   = "translation.set"
	ActionCMSInstall       = "cms.install"
)

// ActionEntry captures a single admin action to persist.
type ActionEntry struct {
	Action     string
	EntityType string
	EntityID   string
	Data       map[string]any
}

// ActionLogFilters narrows List results.
type ActionLogFilters struct {
	UserID     string
	Action     string
	EntityType string
	Since      *time.Time
	Until      *time.Time
}

// ActionLogListOptions controls pagination and filtering.
type ActionLogListOptions struct {
	Page     int
	PageSize int
	Filters  ActionLogFilters
}

// ActionLogService persists and queries admin action logs.
type ActionLogService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewActionLogService constructs an ActionLogService.
func NewActionLogService(db *gorm.DB) (*ActionLogService, error) {
	if db == nil {
		return nil, errors.New("action log service: db is required")
	}
	return &ActionLogService{db: db, now: time.Now}, nil
}

// Log stores an entry. The acting user and IP are taken from ctx.
func (s *ActionLogService) Log(ctx context.Context, entry ActionEntry) error {
	ctx = ensureContext(ctx)

	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return errors.New("action log service: action is required")
	}

	record := models.ActionLog{
		Action:     action,
		EntityType: strings.TrimSpace(entry.EntityType),
		EntityID:   strings.TrimSpace(entry.EntityID),
		Data:       encodeJSON(entry.Data),
		CreatedAt:  s.now().UTC(),
	}
	if actor, ok := auditctx.FromContext(ctx); ok {
		if id := strings.TrimSpace(actor.UserID); id != "" {
			record.UserID = &id
		}
		record.IPAddress = actor.IPAddress
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("action log service: create: %w", err)
	}
	return nil
}

// List returns paginated logs, newest first.
func (s *ActionLogService) List(ctx context.Context, opts ActionLogListOptions) ([]models.ActionLog, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage := clampPage(opts.Page, opts.PageSize, 200, 50)

	var (
		rows  []models.ActionLog
		total int64
	)
	query := applyActionLogFilters(s.db.WithContext(ctx).Model(&models.ActionLog{}), opts.Filters)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("action log service: count: %w", err)
	}
	if err := query.
		Preload("User").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("action log service: list: %w", err)
	}
	return rows, total, nil
}

// CleanupOlderThan deletes logs older than retentionDays.
func (s *ActionLogService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)
	if retentionDays <= 0 {
		return 0, errors.New("action log service: retentionDays must be positive")
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ActionLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("action log service: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func applyActionLogFilters(query *gorm.DB, filters ActionLogFilters) *gorm.DB {
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.EntityType != "" {
		query = query.Where("entity_type = ?", filters.EntityType)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}

// recordAction logs entry while tolerating failures.
func recordAction(logs *ActionLogService, ctx context.Context, entry ActionEntry) {
	if logs == nil {
		return
	}
	_ = logs.Log(ctx, entry)
}
