package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/internal/events"
	"github.com/exiloncms/exiloncms/internal/extensions"
	"github.com/exiloncms/exiloncms/internal/models"
	"github.com/exiloncms/exiloncms/internal/permissions"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/logger"
	"github.com/exiloncms/exiloncms/pkg/metrics"
)

// InstallOptions tunes archive installs.
type InstallOptions struct {
	// Replace allows overwriting an installed extension with the same id.
	Replace bool
	// Source is recorded on the extension row (upload, marketplace, update).
	Source string
}

// PluginService enables, disables, installs and removes plugins. The set of
// enabled plugins is the enabled_plugins setting.
type PluginService struct {
	deps     ExtensionDeps
	migrator *extensions.Migrator
	notifier lifecycleNotifier
	log      *zap.Logger
	now      func() time.Time

	mu           sync.Mutex
	invalidators []CacheInvalidator
}

// NewPluginService constructs a PluginService.
func NewPluginService(deps ExtensionDeps, migrator *extensions.Migrator) (*PluginService, error) {
	if err := deps.validate("plugin service"); err != nil {
		return nil, err
	}
	if migrator == nil {
		return nil, errors.New("plugin service: migrator is required")
	}
	log := logger.WithModule("plugins")
	return &PluginService{
		deps:     deps,
		migrator: migrator,
		notifier: lifecycleNotifier{publisher: deps.Publisher, hub: deps.Hub, log: log},
		log:      log,
		now:      time.Now,
	}, nil
}

// AddInvalidator registers a cache to clear after every lifecycle change.
func (s *PluginService) AddInvalidator(inv CacheInvalidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidators = append(s.invalidators, inv)
}

// EnabledIDs returns the enabled plugin ids in stored order.
func (s *PluginService) EnabledIDs(ctx context.Context) ([]string, error) {
	ids, err := s.deps.Settings.GetList(ensureContext(ctx), database.SettingEnabledPlugins)
	if err != nil {
		return nil, fmt.Errorf("plugin service: load enabled list: %w", err)
	}
	return ids, nil
}

// IsEnabled reports whether id is in the enabled list.
func (s *PluginService) IsEnabled(ctx context.Context, id string) (bool, error) {
	ids, err := s.EnabledIDs(ctx)
	if err != nil {
		return false, err
	}
	return containsString(ids, id), nil
}

// List returns every plugin found on disk plus installed rows whose directory
// disappeared. Plugins with broken manifests are included with their error.
func (s *PluginService) List(ctx context.Context) ([]ExtensionDTO, error) {
	ctx = ensureContext(ctx)

	infos, err := s.deps.Registry.Discover(extensions.KindPlugin)
	if err != nil {
		return nil, fmt.Errorf("plugin service: discover: %w", err)
	}
	enabled, err := s.EnabledIDs(ctx)
	if err != nil {
		return nil, err
	}
	records, err := loadExtensionRecords(ctx, s.deps.DB, extensions.KindPlugin)
	if err != nil {
		return nil, fmt.Errorf("plugin service: load records: %w", err)
	}

	out := make([]ExtensionDTO, 0, len(infos))
	for _, info := range infos {
		dto := newExtensionDTO(info, s.deps.CoreVersion)
		dto.Enabled = containsString(enabled, info.ID)
		if record, ok := records[info.ID]; ok {
			applyRecord(&dto, record)
			delete(records, info.ID)
		}
		out = append(out, dto)
	}
	for _, record := range records {
		dto := missingDTO(record)
		dto.Enabled = containsString(enabled, record.Slug)
		out = append(out, dto)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns one plugin including its pending migrations.
func (s *PluginService) Get(ctx context.Context, id string) (*ExtensionDTO, error) {
	ctx = ensureContext(ctx)
	id = normaliseExtensionID(id)

	info, err := s.deps.Registry.Get(extensions.KindPlugin, id)
	if info == nil {
		return nil, extensionError(err)
	}

	dto := newExtensionDTO(info, s.deps.CoreVersion)
	if dto.Enabled, err = s.IsEnabled(ctx, id); err != nil {
		return nil, err
	}
	records, err := loadExtensionRecords(ctx, s.deps.DB, extensions.KindPlugin)
	if err != nil {
		return nil, fmt.Errorf("plugin service: load records: %w", err)
	}
	if record, ok := records[id]; ok {
		applyRecord(&dto, record)
	}
	if info.Valid() {
		pending, err := s.migrator.Pending(ctx, info)
		if err != nil {
			return nil, fmt.Errorf("plugin service: pending migrations: %w", err)
		}
		dto.PendingMigrations = pending
	}
	return &dto, nil
}

// Toggle flips a plugin between enabled and disabled and returns the new
// state. Enabling runs pending migrations first; a failing migration aborts
// the enable and leaves the enabled list untouched.
func (s *PluginService) Toggle(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)
	id = normaliseExtensionID(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	enabled, err := s.EnabledIDs(ctx)
	if err != nil {
		return false, err
	}
	if containsString(enabled, id) {
		return false, s.disableLocked(ctx, id, enabled)
	}
	if err := s.enableLocked(ctx, id, enabled); err != nil {
		return false, err
	}
	return true, nil
}

// Enable enables a plugin. Enabling an enabled plugin is a no-op.
func (s *PluginService) Enable(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	id = normaliseExtensionID(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	enabled, err := s.EnabledIDs(ctx)
	if err != nil {
		return err
	}
	if containsString(enabled, id) {
		return nil
	}
	return s.enableLocked(ctx, id, enabled)
}

// Disable disables a plugin. Disabling a disabled plugin is a no-op.
func (s *PluginService) Disable(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	id = normaliseExtensionID(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	enabled, err := s.EnabledIDs(ctx)
	if err != nil {
		return err
	}
	if !containsString(enabled, id) {
		return nil
	}
	return s.disableLocked(ctx, id, enabled)
}

func (s *PluginService) enableLocked(ctx context.Context, id string, enabled []string) (err error) {
	defer func() {
		metrics.ExtensionToggles.WithLabelValues(string(extensions.KindPlugin), "enable", metrics.Result(err)).Inc()
	}()

	info, err := s.deps.Registry.Get(extensions.KindPlugin, id)
	if err != nil {
		return extensionError(err)
	}
	manifest := info.Manifest
	if !manifest.SupportsCore(s.deps.CoreVersion) {
		return ErrIncompatibleCore.WithMessage(fmt.Sprintf("%s requires ExilonCMS %s", manifest.Name, manifest.MinCoreVersion()))
	}

	applied, err := s.migrator.Run(ctx, info)
	if err != nil {
		s.log.Error("plugin migrations failed", zap.String("plugin", id), zap.Strings("applied", applied), zap.Error(err))
		return extensionError(err)
	}

	if err := s.registerPermissions(ctx, manifest); err != nil {
		return err
	}
	if err := upsertExtensionRecord(ctx, s.deps.DB, manifest, "", s.now().UTC()); err != nil {
		return fmt.Errorf("plugin service: record plugin: %w", err)
	}
	if err := s.deps.Settings.SetList(ctx, database.SettingEnabledPlugins, append(enabled, id)); err != nil {
		return err
	}

	s.afterChange(ctx)
	recordAction(s.deps.ActionLogs, ctx, ActionEntry{
		Action:     ActionPluginEnable,
		EntityType: models.ExtensionKindPlugin,
		EntityID:   id,
		Data:       map[string]any{"version": manifest.Version, "migrations": applied},
	})
	s.notifier.emit(ctx, events.Event{
		Type:        events.PluginEnabled,
		Kind:        models.ExtensionKindPlugin,
		ExtensionID: id,
		Version:     manifest.Version,
	})
	s.log.Info("plugin enabled", zap.String("plugin", id), zap.Int("migrations", len(applied)))
	return nil
}

func (s *PluginService) disableLocked(ctx context.Context, id string, enabled []string) (err error) {
	defer func() {
		metrics.ExtensionToggles.WithLabelValues(string(extensions.KindPlugin), "disable", metrics.Result(err)).Inc()
	}()

	if err := s.deps.Settings.SetList(ctx, database.SettingEnabledPlugins, removeString(enabled, id)); err != nil {
		return err
	}

	s.afterChange(ctx)
	recordAction(s.deps.ActionLogs, ctx, ActionEntry{
		Action:     ActionPluginDisable,
		EntityType: models.ExtensionKindPlugin,
		EntityID:   id,
	})
	s.notifier.emit(ctx, events.Event{
		Type:        events.PluginDisabled,
		Kind:        models.ExtensionKindPlugin,
		ExtensionID: id,
	})
	s.log.Info("plugin disabled", zap.String("plugin", id))
	return nil
}

// InstallFromArchive installs a plugin zip read from r. size may be zero
// when unknown. An enabled plugin that gets replaced has its new migrations
// applied immediately.
func (s *PluginService) InstallFromArchive(ctx context.Context, r io.Reader, size int64, opts InstallOptions) (dto *ExtensionDTO, err error) {
	ctx = ensureContext(ctx)
	operation := "install"
	if opts.Replace {
		operation = "update"
	}
	defer func() {
		metrics.ExtensionInstalls.WithLabelValues(string(extensions.KindPlugin), operation, metrics.Result(err)).Inc()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.deps.Installer.Install(r, size, extensions.KindPlugin, opts.Replace)
	if err != nil {
		return nil, extensionError(err)
	}
	manifest := result.Manifest
	id := manifest.ID

	source := defaultIfEmpty(opts.Source, SourceUpload)
	if err := upsertExtensionRecord(ctx, s.deps.DB, manifest, source, s.now().UTC()); err != nil {
		if !result.Replaced {
			if rmErr := s.deps.Installer.Remove(extensions.KindPlugin, id); rmErr != nil {
				s.log.Warn("cleanup after failed install", zap.String("plugin", id), zap.Error(rmErr))
			}
		}
		return nil, fmt.Errorf("plugin service: record plugin: %w", err)
	}

	enabled, err := s.EnabledIDs(ctx)
	if err != nil {
		return nil, err
	}
	if result.Replaced && containsString(enabled, id) {
		info, err := s.deps.Registry.Get(extensions.KindPlugin, id)
		if err != nil {
			return nil, extensionError(err)
		}
		if _, err := s.migrator.Run(ctx, info); err != nil {
			return nil, extensionError(err)
		}
		if err := s.registerPermissions(ctx, manifest); err != nil {
			return nil, err
		}
	}

	s.afterChange(ctx)

	action, eventType := ActionPluginInstall, events.PluginInstalled
	if result.Replaced {
		action, eventType = ActionPluginUpdate, events.PluginUpdated
	}
	recordAction(s.deps.ActionLogs, ctx, ActionEntry{
		Action:     action,
		EntityType: models.ExtensionKindPlugin,
		EntityID:   id,
		Data:       map[string]any{"version": manifest.Version, "source": source},
	})
	s.notifier.emit(ctx, events.Event{
		Type:        eventType,
		Kind:        models.ExtensionKindPlugin,
		ExtensionID: id,
		Version:     manifest.Version,
		Data:        map[string]any{"source": source},
	})
	if !manifest.SupportsCore(s.deps.CoreVersion) {
		s.log.Warn("installed plugin needs a newer core", zap.String("plugin", id), zap.String("requires", manifest.MinCoreVersion()))
	}

	out := newExtensionDTO(&extensions.Info{ID: id, Kind: extensions.KindPlugin, Path: result.Path, Manifest: manifest}, s.deps.CoreVersion)
	out.Installed = true
	out.Source = source
	out.Enabled = containsString(enabled, id)
	return &out, nil
}

// InstallFromURL downloads a plugin archive and installs it.
func (s *PluginService) InstallFromURL(ctx context.Context, url string, opts InstallOptions) (*ExtensionDTO, error) {
	ctx = ensureContext(ctx)
	if s.deps.Downloader == nil {
		return nil, apperrors.NewBadRequest("remote installs are disabled")
	}
	body, size, err := s.deps.Downloader.Download(ctx, url)
	if err != nil {
		return nil, apperrors.ErrBadRequest.WithMessage("could not download the archive").WithInternal(err)
	}
	defer body.Close()

	if size < 0 {
		size = 0
	}
	if opts.Source == "" {
		opts.Source = SourceMarketplace
	}
	return s.InstallFromArchive(ctx, body, size, opts)
}

// Uninstall removes the plugin's directory and row, then drops it from the
// enabled list. A failed removal leaves the enabled list untouched.
// Tables created by its migrations are kept; purge also forgets which
// migrations ran so a reinstall applies them again, and revokes the
// permissions the plugin declared.
func (s *PluginService) Uninstall(ctx context.Context, id string, purge bool) (err error) {
	ctx = ensureContext(ctx)
	id = normaliseExtensionID(id)
	defer func() {
		metrics.ExtensionInstalls.WithLabelValues(string(extensions.KindPlugin), "uninstall", metrics.Result(err)).Inc()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := loadExtensionRecords(ctx, s.deps.DB, extensions.KindPlugin)
	if err != nil {
		return fmt.Errorf("plugin service: load records: %w", err)
	}
	_, hasRecord := records[id]

	if err := s.deps.Installer.Remove(extensions.KindPlugin, id); err != nil {
		if !errors.Is(err, extensions.ErrExtensionNotFound) || !hasRecord {
			return extensionError(err)
		}
	}
	if err := deleteExtensionRecord(ctx, s.deps.DB, extensions.KindPlugin, id); err != nil {
		return fmt.Errorf("plugin service: delete record: %w", err)
	}

	enabled, err := s.EnabledIDs(ctx)
	if err != nil {
		return err
	}
	if containsString(enabled, id) {
		if err := s.deps.Settings.SetList(ctx, database.SettingEnabledPlugins, removeString(enabled, id)); err != nil {
			return err
		}
	}
	if purge {
		if err := s.migrator.Forget(ctx, id); err != nil {
			return fmt.Errorf("plugin service: forget migrations: %w", err)
		}
		if _, err := permissions.Forget(ctx, s.deps.DB, permissions.PluginModule(id)); err != nil {
			return fmt.Errorf("plugin service: forget permissions: %w", err)
		}
	}

	s.afterChange(ctx)
	recordAction(s.deps.ActionLogs, ctx, ActionEntry{
		Action:     ActionPluginUninstall,
		EntityType: models.ExtensionKindPlugin,
		EntityID:   id,
		Data:       map[string]any{"purge": purge},
	})
	s.notifier.emit(ctx, events.Event{
		Type:        events.PluginUninstalled,
		Kind:        models.ExtensionKindPlugin,
		ExtensionID: id,
	})
	return nil
}

// LoadEnabled registers the permissions declared by every enabled plugin.
// It runs at startup; broken plugins are logged and skipped.
func (s *PluginService) LoadEnabled(ctx context.Context) error {
	ctx = ensureContext(ctx)
	enabled, err := s.EnabledIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range enabled {
		info, err := s.deps.Registry.Get(extensions.KindPlugin, id)
		if err != nil {
			s.log.Warn("enabled plugin cannot be loaded", zap.String("plugin", id), zap.Error(err))
			continue
		}
		if err := s.registerPermissions(ctx, info.Manifest); err != nil {
			return err
		}
	}
	return nil
}

// EnabledManifests returns manifests of enabled plugins that load cleanly, in
// enabled-list order.
func (s *PluginService) EnabledManifests(ctx context.Context) ([]*extensions.Manifest, error) {
	enabled, err := s.EnabledIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*extensions.Manifest, 0, len(enabled))
	for _, id := range enabled {
		info, err := s.deps.Registry.Get(extensions.KindPlugin, id)
		if err != nil {
			continue
		}
		out = append(out, info.Manifest)
	}
	return out, nil
}

func (s *PluginService) registerPermissions(ctx context.Context, manifest *extensions.Manifest) error {
	if manifest == nil || len(manifest.Permissions) == 0 {
		return nil
	}
	ids := make([]string, 0, len(manifest.Permissions))
	for _, def := range manifest.Permissions {
		if err := permissions.RegisterOrReplace(&permissions.Permission{
			ID:          def.ID,
			Module:      permissions.PluginModule(manifest.ID),
			DependsOn:   []string{permissions.AdminAccess},
			Description: def.Description,
		}); err != nil {
			return apperrors.ErrInvalidManifest.WithMessage(err.Error()).WithInternal(err)
		}
		ids = append(ids, def.ID)
	}
	if err := permissions.Sync(ctx, s.deps.DB); err != nil {
		return fmt.Errorf("plugin service: sync permissions: %w", err)
	}
	err := database.AssignRolePermissions(s.deps.DB.WithContext(ctx), database.RoleAdmin, ids)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("plugin service: grant permissions: %w", err)
	}
	return nil
}

func (s *PluginService) afterChange(ctx context.Context) {
	s.deps.Registry.Invalidate(extensions.KindPlugin)
	runInvalidators(ctx, s.invalidators)
}
