package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/exiloncms/exiloncms/internal/api"
	"github.com/exiloncms/exiloncms/internal/app"
	"github.com/exiloncms/exiloncms/internal/app/container"
	"github.com/exiloncms/exiloncms/internal/app/maintenance"
	iauth "github.com/exiloncms/exiloncms/internal/auth"
	"github.com/exiloncms/exiloncms/internal/middleware"
	"github.com/exiloncms/exiloncms/internal/monitoring"
	"github.com/exiloncms/exiloncms/internal/monitoring/checks"
)

const healthCheckTimeout = 3 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	Container  *container.Container
	Monitoring *monitoring.Module
	Scheduler  *maintenance.Scheduler
	Router     *gin.Engine
}

// bootstrapRuntime wires storage, services, background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger, opts ...container.Option) (*runtimeStack, error) {
	stack := &runtimeStack{}
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	c, err := container.New(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	stack.Container = c

	if err := c.Plugins.LoadEnabled(ctx); err != nil {
		log.Warn("loading enabled plugins failed", zap.Error(err))
	}

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret: cfg.Auth.JWT.Secret,
		Issuer: cfg.Auth.JWT.Issuer,
		TTL:    cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Monitoring = monitoring.NewModule()
	stack.Scheduler = maintenance.NewScheduler(schedulerConfig(cfg), schedulerJobs(cfg, c), maintenance.WithTracker(stack.Monitoring.Jobs()))
	registerHealthChecks(stack.Monitoring, cfg, c)

	if err := stack.Scheduler.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:      cfg,
		JWT:         jwtSvc,
		Revocations: iauth.NewRevocations(c.Cache),
		RateStore:   middleware.NewCacheRateStore(c.Cache),
		Checker:     c.Checker,
		Hub:         c.Hub,
		Monitoring:  stack.Monitoring,
		Services:    apiServices(c),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func apiServices(c *container.Container) api.Services {
	return api.Services{
		Plugins:       c.Plugins,
		Themes:        c.Themes,
		Updates:       c.Updates,
		Marketplace:   c.Marketplace,
		Settings:      c.Settings,
		Navigation:    c.Navigation,
		Navbar:        c.Navbar,
		Posts:         c.Posts,
		Pages:         c.Pages,
		Servers:       c.Servers,
		Users:         c.Users,
		Roles:         c.Roles,
		Notifications: c.Notifications,
		ActionLogs:    c.ActionLogs,
		Translations:  c.Translations,
		Backups:       c.Backups,
		Install:       c.Install,
	}
}

func schedulerConfig(cfg *app.Config) maintenance.Config {
	return maintenance.Config{
		UpdateCheckSchedule:  cfg.Maintenance.UpdateCheckSchedule,
		BackupSchedule:       cfg.Backup.Schedule,
		BackupKeep:           cfg.Backup.Keep,
		LogRetentionSchedule: cfg.Maintenance.LogRetentionSchedule,
		LogRetentionDays:     cfg.Maintenance.ActionLogRetentionDays,
	}
}

func schedulerJobs(cfg *app.Config, c *container.Container) maintenance.Jobs {
	jobs := maintenance.Jobs{
		Updates:    c.Updates,
		ActionLogs: c.ActionLogs,
	}
	if cfg.Backup.Enabled && c.Backups.Supported() {
		jobs.Backups = c.Backups
	}
	// Redis expires keys on its own; only the SQL cache table needs sweeping.
	if c.Redis == nil && c.DBStore != nil {
		jobs.Cache = c.DBStore
	}
	return jobs
}

func registerHealthChecks(mon *monitoring.Module, cfg *app.Config, c *container.Container) {
	health := mon.Health()
	health.RegisterLiveness(checks.Realtime(c.Hub))

	health.RegisterReadiness(checks.Database(c.DB, healthCheckTimeout))
	var redis checks.RedisPinger
	if c.Redis != nil {
		redis = c.Redis
	}
	health.RegisterReadiness(checks.Redis(redis, cfg.Cache.RedisActive(), healthCheckTimeout))
	health.RegisterReadiness(checks.Maintenance(mon.Jobs(), 0))
	health.RegisterReadiness(checks.Directories(map[string]string{
		"plugins": cfg.Extensions.PluginsPath,
		"themes":  cfg.Extensions.ThemesPath,
		"temp":    cfg.Extensions.TempPath,
	}))
}

// Shutdown stops background jobs, drains the final maintenance pass and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Scheduler != nil {
		<-s.Scheduler.Stop().Done()
	}

	if s.Container != nil {
		if err := s.Container.Close(); err != nil {
			log.Warn("resource shutdown", zap.Error(err))
		}
	}
}
