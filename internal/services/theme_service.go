package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/internal/events"
	"github.com/exiloncms/exiloncms/internal/extensions"
	"github.com/exiloncms/exiloncms/internal/models"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/logger"
	"github.com/exiloncms/exiloncms/pkg/metrics"
)

// ErrActiveTheme blocks removing the theme currently in use.
var ErrActiveTheme = apperrors.New("THEME_ACTIVE", "Deactivate the theme before removing it", http.StatusConflict)

// ThemeConfigKey returns the setting key holding a theme's configuration.
func ThemeConfigKey(id string) string {
	return "theme." + id + ".config"
}

// ThemeService activates, installs and configures themes. The active theme
// id is the theme setting; an empty value means the built-in default.
type ThemeService struct {
	deps     ExtensionDeps
	notifier lifecycleNotifier
	log      *zap.Logger
	now      func() time.Time

	mu           sync.Mutex
	invalidators []CacheInvalidator
}

// NewThemeService constructs a ThemeService.
func NewThemeService(deps ExtensionDeps) (*ThemeService, error) {
	if err := deps.validate("theme service"); err != nil {
		return nil, err
	}
	log := logger.WithModule("themes")
	return &ThemeService{
		deps:     deps,
		notifier: lifecycleNotifier{publisher: deps.Publisher, hub: deps.Hub, log: log},
		log:      log,
		now:      time.Now,
	}, nil
}

// AddInvalidator registers a cache to clear after every lifecycle change.
func (s *ThemeService) AddInvalidator(inv CacheInvalidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidators = append(s.invalidators, inv)
}

// Active returns the active theme id, "" for the default theme.
func (s *ThemeService) Active(ctx context.Context) (string, error) {
	return s.deps.Settings.GetString(ensureContext(ctx), database.SettingTheme, "")
}

// List returns themes found on disk plus installed rows whose directory is gone.
func (s *ThemeService) List(ctx context.Context) ([]ExtensionDTO, error) {
	ctx = ensureContext(ctx)

	infos, err := s.deps.Registry.Discover(extensions.KindTheme)
	if err != nil {
		return nil, fmt.Errorf("theme service: discover: %w", err)
	}
	active, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	records, err := loadExtensionRecords(ctx, s.deps.DB, extensions.KindTheme)
	if err != nil {
		return nil, fmt.Errorf("theme service: load records: %w", err)
	}

	out := make([]ExtensionDTO, 0, len(infos))
	for _, info := range infos {
		dto := newExtensionDTO(info, s.deps.CoreVersion)
		dto.Enabled = info.ID == active
		if record, ok := records[info.ID]; ok {
			applyRecord(&dto, record)
			delete(records, info.ID)
		}
		out = append(out, dto)
	}
	for _, record := range records {
		dto := missingDTO(record)
		dto.Enabled = record.Slug == active
		out = append(out, dto)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Activate makes id the active theme.
func (s *ThemeService) Activate(ctx context.Context, id string) (err error) {
	ctx = ensureContext(ctx)
	id = normaliseExtensionID(id)
	defer func() {
		metrics.ExtensionToggles.WithLabelValues(string(extensions.KindTheme), "enable", metrics.Result(err)).Inc()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.deps.Registry.Get(extensions.KindTheme, id)
	if err != nil {
		return extensionError(err)
	}
	if !info.Manifest.SupportsCore(s.deps.CoreVersion) {
		return ErrIncompatibleCore.WithMessage(fmt.Sprintf("%s requires ExilonCMS %s", info.Manifest.Name, info.Manifest.MinCoreVersion()))
	}

	previous, err := s.Active(ctx)
	if err != nil {
		return err
	}
	if err := upsertExtensionRecord(ctx, s.deps.DB, info.Manifest, "", s.now().UTC()); err != nil {
		return fmt.Errorf("theme service: record theme: %w", err)
	}
	if err := s.deps.Settings.Set(ctx, database.SettingTheme, id); err != nil {
		return err
	}

	s.afterChange(ctx)
	recordAction(s.deps.ActionLogs, ctx, ActionEntry{
		Action:     ActionThemeActivate,
		EntityType: models.ExtensionKindTheme,
		EntityID:   id,
		Data:       map[string]any{"previous": previous},
	})
	s.notifier.emit(ctx, events.Event{
		Type:        events.ThemeActivated,
		Kind:        models.ExtensionKindTheme,
		ExtensionID: id,
		Version:     info.Manifest.Version,
	})
	return nil
}

// Deactivate switches back to the default theme.
func (s *ThemeService) Deactivate(ctx context.Context) (err error) {
	ctx = ensureContext(ctx)
	defer func() {
		metrics.ExtensionToggles.WithLabelValues(string(extensions.KindTheme), "disable", metrics.Result(err)).Inc()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.Active(ctx)
	if err != nil {
		return err
	}
	if previous == "" {
		return nil
	}
	if err := s.deps.Settings.Set(ctx, database.SettingTheme, ""); err != nil {
		return err
	}

	s.afterChange(ctx)
	recordAction(s.deps.ActionLogs, ctx, ActionEntry{
		Action:     ActionThemeDeactivate,
		EntityType: models.ExtensionKindTheme,
		EntityID:   previous,
	})
	s.notifier.emit(ctx, events.Event{
		Type:        events.ThemeDeactivated,
		Kind:        models.ExtensionKindTheme,
		ExtensionID: previous,
	})
	return nil
}

// Install installs a theme archive.
func (s *ThemeService) Install(ctx context.Context, r io.Reader, size int64, opts InstallOptions) (dto *ExtensionDTO, err error) {
	ctx = ensureContext(ctx)
	operation := "install"
	if opts.Replace {
		operation = "update"
	}
	defer func() {
		metrics.ExtensionInstalls.WithLabelValues(string(extensions.KindTheme), operation, metrics.Result(err)).Inc()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.deps.Installer.Install(r, size, extensions.KindTheme, opts.Replace)
	if err != nil {
		return nil, extensionError(err)
	}
	manifest := result.Manifest
	source := defaultIfEmpty(opts.Source, SourceUpload)

	if err := upsertExtensionRecord(ctx, s.deps.DB, manifest, source, s.now().UTC()); err != nil {
		if !result.Replaced {
			if rmErr := s.deps.Installer.Remove(extensions.KindTheme, manifest.ID); rmErr != nil {
				s.log.Warn("cleanup after failed install", zap.String("theme", manifest.ID), zap.Error(rmErr))
			}
		}
		return nil, fmt.Errorf("theme service: record theme: %w", err)
	}

	s.afterChange(ctx)
	action, eventType := ActionThemeInstall, events.ThemeInstalled
	if result.Replaced {
		action, eventType = ActionThemeUpdate, events.ThemeUpdated
	}
	recordAction(s.deps.ActionLogs, ctx, ActionEntry{
		Action:     action,
		EntityType: models.ExtensionKindTheme,
		EntityID:   manifest.ID,
		Data:       map[string]any{"version": manifest.Version, "source": source},
	})
	s.notifier.emit(ctx, events.Event{
		Type:        eventType,
		Kind:        models.ExtensionKindTheme,
		ExtensionID: manifest.ID,
		Version:     manifest.Version,
	})

	active, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	out := newExtensionDTO(&extensions.Info{ID: manifest.ID, Kind: extensions.KindTheme, Path: result.Path, Manifest: manifest}, s.deps.CoreVersion)
	out.Installed = true
	out.Source = source
	out.Enabled = manifest.ID == active
	return &out, nil
}

// InstallFromURL downloads and installs a theme archive.
func (s *ThemeService) InstallFromURL(ctx context.Context, url string, opts InstallOptions) (*ExtensionDTO, error) {
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
	return s.Install(ctx, body, size, opts)
}

// Uninstall removes a theme that is not active, with its stored configuration.
func (s *ThemeService) Uninstall(ctx context.Context, id string) (err error) {
	ctx = ensureContext(ctx)
	id = normaliseExtensionID(id)
	defer func() {
		metrics.ExtensionInstalls.WithLabelValues(string(extensions.KindTheme), "uninstall", metrics.Result(err)).Inc()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.Active(ctx)
	if err != nil {
		return err
	}
	if active == id {
		return ErrActiveTheme
	}

	records, err := loadExtensionRecords(ctx, s.deps.DB, extensions.KindTheme)
	if err != nil {
		return fmt.Errorf("theme service: load records: %w", err)
	}
	_, hasRecord := records[id]

	if err := s.deps.Installer.Remove(extensions.KindTheme, id); err != nil {
		if !errors.Is(err, extensions.ErrExtensionNotFound) || !hasRecord {
			return extensionError(err)
		}
	}
	if err := deleteExtensionRecord(ctx, s.deps.DB, extensions.KindTheme, id); err != nil {
		return fmt.Errorf("theme service: delete record: %w", err)
	}
	if err := s.deps.Settings.Delete(ctx, ThemeConfigKey(id)); err != nil {
		return err
	}

	s.afterChange(ctx)
	recordAction(s.deps.ActionLogs, ctx, ActionEntry{
		Action:     ActionThemeUninstall,
		EntityType: models.ExtensionKindTheme,
		EntityID:   id,
	})
	s.notifier.emit(ctx, events.Event{
		Type:        events.ThemeUninstalled,
		Kind:        models.ExtensionKindTheme,
		ExtensionID: id,
	})
	return nil
}

// Config returns the stored configuration of a theme, falling back to the
// defaults declared in its manifest.
func (s *ThemeService) Config(ctx context.Context, id string) (json.RawMessage, error) {
	ctx = ensureContext(ctx)
	id = normaliseExtensionID(id)

	info, err := s.deps.Registry.Get(extensions.KindTheme, id)
	if err != nil {
		return nil, extensionError(err)
	}

	stored, ok, err := s.deps.Settings.Get(ctx, ThemeConfigKey(id))
	if err != nil {
		return nil, err
	}
	if ok && gjson.Valid(stored) && gjson.Parse(stored).IsObject() {
		return json.RawMessage(stored), nil
	}
	if defaults := info.Manifest.Config; len(defaults) > 0 && gjson.ValidBytes(defaults) && gjson.ParseBytes(defaults).IsObject() {
		return defaults, nil
	}
	return json.RawMessage(`{}`), nil
}

// UpdateConfig patches the theme configuration. Keys are JSON paths such as
// "colors.primary"; a nil value deletes the key.
func (s *ThemeService) UpdateConfig(ctx context.Context, id string, values map[string]any) (json.RawMessage, error) {
	ctx = ensureContext(ctx)
	id = normaliseExtensionID(id)

	current, err := s.Config(ctx, id)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	doc := []byte(current)
	for _, key := range keys {
		path := strings.TrimSpace(key)
		if path == "" || strings.ContainsAny(path, "*?#|@") {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("invalid config key %q", key))
		}
		if values[key] == nil {
			doc, err = sjson.DeleteBytes(doc, path)
		} else {
			doc, err = sjson.SetBytes(doc, path, values[key])
		}
		if err != nil {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("invalid config key %q", key)).WithInternal(err)
		}
	}

	if err := s.deps.Settings.Set(ctx, ThemeConfigKey(id), string(doc)); err != nil {
		return nil, err
	}
	recordAction(s.deps.ActionLogs, ctx, ActionEntry{
		Action:     ActionThemeConfigure,
		EntityType: models.ExtensionKindTheme,
		EntityID:   id,
		Data:       map[string]any{"keys": keys},
	})
	return json.RawMessage(doc), nil
}

func (s *ThemeService) afterChange(ctx context.Context) {
	s.deps.Registry.Invalidate(extensions.KindTheme)
	runInvalidators(ctx, s.invalidators)
}
