// Package container assembles the long-lived services shared by the HTTP
// server and the operator CLI.
package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/app"
	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/internal/events"
	"github.com/exiloncms/exiloncms/internal/extensions"
	"github.com/exiloncms/exiloncms/internal/marketplace"
	"github.com/exiloncms/exiloncms/internal/permissions"
	"github.com/exiloncms/exiloncms/internal/realtime"
	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/internal/updates"
	"github.com/exiloncms/exiloncms/pkg/logger"
)

// Container owns the database handle, caches, publishers and every domain service.
type Container struct {
	Config *app.Config

	DB        *gorm.DB
	Cache     cache.Store
	DBStore   *cache.DatabaseStore
	Redis     *cache.RedisStore
	Publisher events.Publisher
	Hub       *realtime.Hub
	Checker   *permissions.Checker
	Registry  *extensions.Registry

	Settings      *services.SettingsService
	ActionLogs    *services.ActionLogService
	Users         *services.UserService
	Roles         *services.RoleService
	Notifications *services.NotificationService
	Plugins       *services.PluginService
	Themes        *services.ThemeService
	Updates       *services.UpdateService
	Marketplace   *services.MarketplaceService
	Navigation    *services.NavigationService
	Navbar        *services.NavbarService
	Posts         *services.PostService
	Pages         *services.PageService
	Servers       *services.ServerService
	Translations  *services.TranslationService
	Backups       *services.BackupService
	Install       *services.InstallService

	ownsDB bool
	log    *zap.Logger
}

// Option customises New.
type Option func(*options)

type options struct {
	db        *gorm.DB
	publisher events.Publisher
}

// WithDB reuses an already migrated database instead of opening one from config.
// The container does not close it.
func WithDB(db *gorm.DB) Option {
	return func(o *options) { o.db = db }
}

// WithPublisher overrides the configured event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// New opens storage and wires the services described by cfg. On error every
// resource opened so far is released.
func New(ctx context.Context, cfg *app.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("container: config is nil")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{Config: cfg, log: logger.WithModule("container")}
	if err := c.openStorage(ctx, o.db); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.openPublisher(o.publisher)
	c.Hub = realtime.NewHub()

	if err := c.wireServices(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) openStorage(ctx context.Context, db *gorm.DB) error {
	cfg := c.Config
	if db == nil {
		opened, err := database.Open(cfg.Database.ConnectionConfig())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		c.DB = opened
		c.ownsDB = true
		if err := database.AutoMigrateAndSeed(opened); err != nil {
			return fmt.Errorf("auto-migrate database: %w", err)
		}
		c.log.Info("database connected", zap.String("driver", opened.Dialector.Name()))
	} else {
		c.DB = db
	}

	c.DBStore = cache.NewDatabaseStore(c.DB)
	c.Cache = c.DBStore

	if cfg.Cache.RedisActive() {
		redis, err := cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig())
		if err != nil {
			c.log.Warn("redis unavailable; falling back to the database cache", zap.Error(err))
		} else {
			c.Redis = redis
			c.Cache = redis
			c.log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}
	return nil
}

func (c *Container) openPublisher(override events.Publisher) {
	if override != nil {
		c.Publisher = override
		return
	}
	c.Publisher = events.NopPublisher{}

	kafkaCfg := c.Config.Events.Kafka
	if !kafkaCfg.Enabled {
		return
	}
	publisher, err := events.NewKafkaPublisher(events.KafkaConfig{Brokers: kafkaCfg.Brokers, Topic: kafkaCfg.Topic})
	if err != nil {
		c.log.Warn("kafka publisher disabled", zap.Error(err))
		return
	}
	c.Publisher = publisher
	c.log.Info("kafka publisher enabled", zap.Strings("brokers", kafkaCfg.Brokers), zap.String("topic", kafkaCfg.Topic))
}

func (c *Container) wireServices() (err error) {
	cfg := c.Config
	ext := cfg.Extensions

	if c.Checker, err = permissions.NewChecker(c.DB); err != nil {
		return fmt.Errorf("initialise permission checker: %w", err)
	}
	if c.Settings, err = services.NewSettingsService(c.DB, c.Cache); err != nil {
		return err
	}
	if c.ActionLogs, err = services.NewActionLogService(c.DB); err != nil {
		return err
	}
	if c.Users, err = services.NewUserService(c.DB, c.ActionLogs); err != nil {
		return err
	}
	if c.Roles, err = services.NewRoleService(c.DB, c.ActionLogs); err != nil {
		return err
	}
	if c.Notifications, err = services.NewNotificationService(c.DB, c.Hub); err != nil {
		return err
	}

	for _, dir := range []string{ext.PluginsPath, ext.ThemesPath, ext.TempPath} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create extension directory %s: %w", dir, err)
		}
	}
	c.Registry = extensions.NewRegistry(ext.PluginsPath, ext.ThemesPath)
	installer, err := extensions.NewInstaller(c.Registry, ext.TempPath, ext.MaxUploadSize)
	if err != nil {
		return err
	}
	migrator, err := extensions.NewMigrator(c.DB)
	if err != nil {
		return err
	}

	client := c.marketplaceClient()
	var downloader services.Downloader = marketplace.NewDownloader(ext.GitHub.Timeout)
	var catalog services.MarketplaceCatalog
	var githubClient *http.Client
	if ext.GitHub.Timeout > 0 {
		githubClient = &http.Client{Timeout: ext.GitHub.Timeout}
	}
	sources := []updates.Source{
		updates.NewGitHubSource(ext.GitHub.APIURL, ext.GitHub.Token, githubClient),
	}
	if client != nil {
		downloader = client
		catalog = client
		sources = append(sources, updates.NewMarketplaceSource(client))
	}

	deps := services.ExtensionDeps{
		DB:          c.DB,
		Registry:    c.Registry,
		Installer:   installer,
		Settings:    c.Settings,
		ActionLogs:  c.ActionLogs,
		Publisher:   c.Publisher,
		Hub:         c.Hub,
		Downloader:  downloader,
		CoreVersion: ext.CoreVersion,
	}
	if c.Plugins, err = services.NewPluginService(deps, migrator); err != nil {
		return err
	}
	if c.Themes, err = services.NewThemeService(deps); err != nil {
		return err
	}

	if c.Updates, err = services.NewUpdateService(services.UpdateServiceConfig{
		Registry:       c.Registry,
		Checker:        updates.NewChecker(sources...),
		Store:          c.Cache,
		TTL:            ext.UpdateCacheTTL,
		Plugins:        c.Plugins,
		Themes:         c.Themes,
		Notifications:  c.Notifications,
		Publisher:      c.Publisher,
		CoreVersion:    ext.CoreVersion,
		CoreRepository: ext.CoreRepository,
	}); err != nil {
		return err
	}
	c.Marketplace = services.NewMarketplaceService(catalog, c.Cache, c.Plugins, c.Themes)

	if c.Navigation, err = services.NewNavigationService(c.Plugins, c.Checker); err != nil {
		return err
	}
	if c.Navbar, err = services.NewNavbarService(c.DB, c.Cache, c.ActionLogs); err != nil {
		return err
	}
	if c.Posts, err = services.NewPostService(c.DB, c.ActionLogs); err != nil {
		return err
	}
	if c.Pages, err = services.NewPageService(c.DB, c.ActionLogs); err != nil {
		return err
	}
	if c.Servers, err = services.NewServerService(c.DB, c.Cache, c.ActionLogs); err != nil {
		return err
	}
	if c.Translations, err = services.NewTranslationService(c.DB, c.Cache, c.ActionLogs); err != nil {
		return err
	}
	if c.Backups, err = services.NewBackupService(c.DB, cfg.Backup.Dir, c.ActionLogs); err != nil {
		return err
	}
	if c.Install, err = services.NewInstallService(c.DB, c.Settings, c.Users, c.ActionLogs, app.Version); err != nil {
		return err
	}

	c.Plugins.AddInvalidator(c.Navigation)
	c.Plugins.AddInvalidator(c.Updates)
	c.Themes.AddInvalidator(c.Updates)
	return nil
}

// marketplaceClient returns nil when the marketplace is disabled or misconfigured.
func (c *Container) marketplaceClient() *marketplace.Client {
	mcfg := c.Config.Extensions.Marketplace
	if !mcfg.Enabled {
		return nil
	}
	client, err := marketplace.NewClient(marketplace.Config{BaseURL: mcfg.URL, Token: mcfg.Token, Timeout: mcfg.Timeout})
	if err != nil {
		if !errors.Is(err, marketplace.ErrDisabled) {
			c.log.Warn("marketplace client disabled", zap.Error(err))
		}
		return nil
	}
	return client
}

// Close releases the publisher, Redis and the database when the container opened it.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs error
	if c.Publisher != nil {
		errs = multierr.Append(errs, c.Publisher.Close())
	}
	if c.Redis != nil {
		errs = multierr.Append(errs, c.Redis.Close())
	}
	if c.ownsDB && c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			errs = multierr.Append(errs, sqlDB.Close())
		}
	}
	return errs
}
