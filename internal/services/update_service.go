package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/events"
	"github.com/exiloncms/exiloncms/internal/extensions"
	"github.com/exiloncms/exiloncms/internal/models"
	"github.com/exiloncms/exiloncms/internal/updates"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/logger"
	"github.com/exiloncms/exiloncms/pkg/metrics"
)

const (
	// UpdateKindCore identifies the CMS itself in update reports.
	UpdateKindCore = "core"

	defaultUpdateCacheTTL = time.Hour
	updateCachePrefix     = "updates:"
)

// UpdateServiceConfig wires the update service.
type UpdateServiceConfig struct {
	Registry      *extensions.Registry
	Checker       *updates.Checker
	Store         cache.Store
	TTL           time.Duration
	Plugins       *PluginService
	Themes        *ThemeService
	Notifications *NotificationService
	Publisher     events.Publisher

	CoreVersion    string
	CoreRepository string
}

// UpdateReport is the cached result of an update check.
type UpdateReport struct {
	Plugins   []updates.Update `json:"plugins"`
	Themes    []updates.Update `json:"themes"`
	Core      *updates.Update  `json:"core,omitempty"`
	CheckedAt time.Time        `json:"checked_at"`
}

// UpdateCounts feeds the admin badge.
type UpdateCounts struct {
	Plugins int  `json:"plugins"`
	Themes  int  `json:"themes"`
	Core    bool `json:"core"`
	Total   int  `json:"total"`
}

type cachedUpdates struct {
	Updates   []updates.Update `json:"updates"`
	CheckedAt time.Time        `json:"checked_at"`
}

// UpdateService checks installed extensions and the CMS against remote
// registries and caches the outcome.
type UpdateService struct {
	cfg UpdateServiceConfig
	log *zap.Logger
	now func() time.Time

	mu       sync.Mutex
	notified map[string]struct{}
}

// NewUpdateService constructs an UpdateService.
func NewUpdateService(cfg UpdateServiceConfig) (*UpdateService, error) {
	if cfg.Registry == nil {
		return nil, errors.New("update service: registry is required")
	}
	if cfg.Checker == nil {
		return nil, errors.New("update service: checker is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("update service: cache store is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultUpdateCacheTTL
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	return &UpdateService{
		cfg:      cfg,
		log:      logger.WithModule("updates"),
		now:      time.Now,
		notified: make(map[string]struct{}),
	}, nil
}

// Check returns available updates. Cached results are reused for the TTL
// unless force is set. Remote failures count as "no update".
func (s *UpdateService) Check(ctx context.Context, force bool) (*UpdateReport, error) {
	ctx = ensureContext(ctx)

	plugins, pluginsAt, err := s.checkKind(ctx, extensions.KindPlugin, force)
	if err != nil {
		return nil, err
	}
	themes, themesAt, err := s.checkKind(ctx, extensions.KindTheme, force)
	if err != nil {
		return nil, err
	}
	core, coreAt, err := s.checkCore(ctx, force)
	if err != nil {
		return nil, err
	}

	report := &UpdateReport{Plugins: plugins, Themes: themes, CheckedAt: latest(pluginsAt, themesAt, coreAt)}
	if len(core) > 0 {
		report.Core = &core[0]
	}

	metrics.AvailableUpdates.WithLabelValues(string(extensions.KindPlugin)).Set(float64(len(plugins)))
	metrics.AvailableUpdates.WithLabelValues(string(extensions.KindTheme)).Set(float64(len(themes)))
	metrics.AvailableUpdates.WithLabelValues(UpdateKindCore).Set(float64(len(core)))

	s.announce(ctx, report)
	return report, nil
}

// Counts returns badge counts from the cached (or freshly computed) report.
func (s *UpdateService) Counts(ctx context.Context) (UpdateCounts, error) {
	report, err := s.Check(ctx, false)
	if err != nil {
		return UpdateCounts{}, err
	}
	counts := UpdateCounts{
		Plugins: len(report.Plugins),
		Themes:  len(report.Themes),
		Core:    report.Core != nil,
	}
	counts.Total = counts.Plugins + counts.Themes
	if counts.Core {
		counts.Total++
	}
	return counts, nil
}

// ClearCache drops every cached update result.
func (s *UpdateService) ClearCache(ctx context.Context) error {
	ctx = ensureContext(ctx)
	if err := s.cfg.Store.Delete(ctx,
		cacheKey(string(extensions.KindPlugin)),
		cacheKey(string(extensions.KindTheme)),
		cacheKey(UpdateKindCore),
	); err != nil {
		return fmt.Errorf("update service: clear cache: %w", err)
	}
	return nil
}

// Invalidate clears the cache after an extension lifecycle change.
func (s *UpdateService) Invalidate(ctx context.Context) {
	if err := s.ClearCache(ctx); err != nil {
		s.log.Warn("update cache not cleared", zap.Error(err))
	}
}

// Apply downloads the release reported for kind/id and reinstalls it over
// the current copy.
func (s *UpdateService) Apply(ctx context.Context, kind, id string) (*ExtensionDTO, error) {
	ctx = ensureContext(ctx)
	parsed, err := extensions.ParseKind(kind)
	if err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}
	id = normaliseExtensionID(id)

	report, err := s.Check(ctx, false)
	if err != nil {
		return nil, err
	}
	list := report.Plugins
	if parsed == extensions.KindTheme {
		list = report.Themes
	}

	var found *updates.Update
	for i := range list {
		if list[i].ID == id {
			found = &list[i]
			break
		}
	}
	if found == nil {
		return nil, ErrNoUpdate
	}
	if found.Release == nil || strings.TrimSpace(found.Release.DownloadURL) == "" {
		return nil, ErrNoUpdate.WithMessage(fmt.Sprintf("%s %s has no downloadable archive", found.Name, found.LatestVersion))
	}

	opts := InstallOptions{Replace: true, Source: SourceUpdate}
	var dto *ExtensionDTO
	switch parsed {
	case extensions.KindPlugin:
		if s.cfg.Plugins == nil {
			return nil, errors.New("update service: plugin service not configured")
		}
		dto, err = s.cfg.Plugins.InstallFromURL(ctx, found.Release.DownloadURL, opts)
	case extensions.KindTheme:
		if s.cfg.Themes == nil {
			return nil, errors.New("update service: theme service not configured")
		}
		dto, err = s.cfg.Themes.InstallFromURL(ctx, found.Release.DownloadURL, opts)
	}
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx)
	s.log.Info("extension updated",
		zap.String("kind", string(parsed)),
		zap.String("id", id),
		zap.String("version", found.LatestVersion))
	return dto, nil
}

func (s *UpdateService) checkKind(ctx context.Context, kind extensions.Kind, force bool) ([]updates.Update, time.Time, error) {
	return s.cached(ctx, string(kind), force, func() ([]updates.Update, error) {
		infos, err := s.cfg.Registry.Discover(kind)
		if err != nil {
			return nil, fmt.Errorf("update service: discover %ss: %w", kind, err)
		}
		targets := make([]updates.Target, 0, len(infos))
		for _, info := range infos {
			if !info.Valid() {
				continue
			}
			targets = append(targets, updates.Target{
				Kind:           string(kind),
				ID:             info.ID,
				Name:           info.Manifest.Name,
				CurrentVersion: info.Manifest.Version,
				GitHub:         info.Manifest.GitHub,
				MarketplaceID:  info.Manifest.UpdateURL,
			})
		}
		return s.cfg.Checker.Check(ctx, targets), nil
	})
}

func (s *UpdateService) checkCore(ctx context.Context, force bool) ([]updates.Update, time.Time, error) {
	if strings.TrimSpace(s.cfg.CoreRepository) == "" || strings.TrimSpace(s.cfg.CoreVersion) == "" {
		return nil, time.Time{}, nil
	}
	return s.cached(ctx, UpdateKindCore, force, func() ([]updates.Update, error) {
		update, ok := s.cfg.Checker.Latest(ctx, updates.Target{
			Kind:           UpdateKindCore,
			ID:             "exiloncms",
			Name:           "ExilonCMS",
			CurrentVersion: s.cfg.CoreVersion,
			GitHub:         s.cfg.CoreRepository,
		})
		if !ok {
			return []updates.Update{}, nil
		}
		return []updates.Update{*update}, nil
	})
}

func (s *UpdateService) cached(ctx context.Context, kind string, force bool, compute func() ([]updates.Update, error)) ([]updates.Update, time.Time, error) {
	key := cacheKey(kind)
	if !force {
		entry, ok, err := cache.GetJSON[cachedUpdates](ctx, s.cfg.Store, key)
		if err != nil {
			s.log.Warn("update cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return entry.Updates, entry.CheckedAt, nil
		}
	}

	found, err := compute()
	if err != nil {
		return nil, time.Time{}, err
	}
	if found == nil {
		found = []updates.Update{}
	}
	entry := cachedUpdates{Updates: found, CheckedAt: s.now().UTC()}
	if err := cache.SetJSON(ctx, s.cfg.Store, key, entry, s.cfg.TTL); err != nil {
		s.log.Warn("update cache write failed", zap.String("key", key), zap.Error(err))
	}
	return entry.Updates, entry.CheckedAt, nil
}

// announce notifies administrators once per newly seen kind/id/version.
func (s *UpdateService) announce(ctx context.Context, report *UpdateReport) {
	all := make([]updates.Update, 0, len(report.Plugins)+len(report.Themes)+1)
	all = append(all, report.Plugins...)
	all = append(all, report.Themes...)
	if report.Core != nil {
		all = append(all, *report.Core)
	}

	s.mu.Lock()
	fresh := make([]updates.Update, 0)
	for _, update := range all {
		key := update.Kind + ":" + update.ID + "@" + update.LatestVersion
		if _, seen := s.notified[key]; seen {
			continue
		}
		s.notified[key] = struct{}{}
		fresh = append(fresh, update)
	}
	s.mu.Unlock()

	if len(fresh) == 0 {
		return
	}

	names := make([]string, 0, len(fresh))
	for _, update := range fresh {
		names = append(names, fmt.Sprintf("%s %s", defaultIfEmpty(update.Name, update.ID), update.LatestVersion))
	}

	if s.cfg.Notifications != nil {
		_, err := s.cfg.Notifications.NotifyAdmins(ctx, NotificationInput{
			Type:  "updates.available",
			Level: models.NotificationInfo,
			Title: "Updates available",
			Body:  strings.Join(names, ", "),
			Link:  "/admin/updates",
			Data:  map[string]any{"count": len(fresh)},
		})
		if err != nil {
			s.log.Warn("update notification failed", zap.Error(err))
		}
	}

	if err := s.cfg.Publisher.Publish(ctx, events.Event{
		Type:       events.UpdatesAvailable,
		Data:       map[string]any{"updates": fresh},
		OccurredAt: s.now().UTC(),
	}); err != nil {
		s.log.Warn("update event not published", zap.Error(err))
	}
}

func cacheKey(kind string) string {
	return updateCachePrefix + kind
}

func latest(times ...time.Time) time.Time {
	var out time.Time
	for _, t := range times {
		if t.After(out) {
			out = t
		}
	}
	return out
}
