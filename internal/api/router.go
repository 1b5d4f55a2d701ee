package api

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/app"
	iauth "github.com/exiloncms/exiloncms/internal/auth"
	"github.com/exiloncms/exiloncms/internal/handlers"
	"github.com/exiloncms/exiloncms/internal/middleware"
	"github.com/exiloncms/exiloncms/internal/monitoring"
	"github.com/exiloncms/exiloncms/internal/permissions"
	"github.com/exiloncms/exiloncms/internal/realtime"
	"github.com/exiloncms/exiloncms/internal/services"
)

// Services groups the domain services exposed over HTTP.
type Services struct {
	Plugins       *services.PluginService
	Themes        *services.ThemeService
	Updates       *services.UpdateService
	Marketplace   *services.MarketplaceService
	Settings      *services.SettingsService
	Navigation    *services.NavigationService
	Navbar        *services.NavbarService
	Posts         *services.PostService
	Pages         *services.PageService
	Servers       *services.ServerService
	Users         *services.UserService
	Roles         *services.RoleService
	Notifications *services.NotificationService
	ActionLogs    *services.ActionLogService
	Translations  *services.TranslationService
	Backups       *services.BackupService
	Install       *services.InstallService
}

// Dependencies carries everything NewRouter wires together.
type Dependencies struct {
	Config      *app.Config
	JWT         *iauth.JWTService
	Revocations *iauth.Revocations
	RateStore   middleware.RateStore
	Checker     *permissions.Checker
	Hub         *realtime.Hub
	Monitoring  *monitoring.Module
	Services    Services
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("api: config must be provided")
	case d.JWT == nil:
		return errors.New("api: jwt service must be provided")
	case d.Checker == nil:
		return errors.New("api: permission checker must be provided")
	case d.Hub == nil:
		return errors.New("api: realtime hub must be provided")
	}
	s := d.Services
	if s.Plugins == nil || s.Themes == nil || s.Updates == nil || s.Marketplace == nil ||
		s.Settings == nil || s.Navigation == nil || s.Navbar == nil || s.Posts == nil ||
		s.Pages == nil || s.Servers == nil || s.Users == nil || s.Roles == nil ||
		s.Notifications == nil || s.ActionLogs == nil || s.Translations == nil ||
		s.Backups == nil || s.Install == nil {
		return errors.New("api: every service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config
	svc := deps.Services

	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger("/health"))
	r.Use(middleware.Metrics("/health", metricsEndpoint(cfg)))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))
	if cfg.Server.RateLimit > 0 {
		r.Use(middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit, time.Minute))
	}

	registerHealthRoutes(r, deps.Monitoring)
	if cfg.Monitoring.Prometheus.Enabled && deps.Monitoring != nil {
		r.GET(metricsEndpoint(cfg), gin.WrapH(deps.Monitoring.Handler()))
	}

	registerInstallRoutes(r, handlers.NewInstallHandler(svc.Install, deps.JWT))

	public := r.Group("/api")
	public.Use(middleware.Maintenance(svc.Settings))
	registerPublicRoutes(public, publicRouteDeps{
		Posts:        handlers.NewPostHandler(svc.Posts),
		Pages:        handlers.NewPageHandler(svc.Pages),
		Navbar:       handlers.NewNavbarHandler(svc.Navbar),
		Servers:      handlers.NewServerHandler(svc.Servers),
		Translations: handlers.NewTranslationHandler(svc.Translations),
	})

	authHandler := handlers.NewAuthHandler(svc.Users, deps.JWT, deps.Revocations, deps.Checker)
	r.POST("/api/auth/login", authHandler.Login)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT, deps.Revocations))
	registerAuthRoutes(api, authHandler)
	registerNotificationRoutes(api, handlers.NewNotificationHandler(svc.Notifications))
	api.GET("/ws", handlers.NewRealtimeHandler(deps.Hub, deps.Checker).Connect)

	admin := api.Group("/admin")
	admin.Use(middleware.RequirePermission(deps.Checker, permissions.AdminAccess))
	admin.GET("/navigation", handlers.NewNavigationHandler(svc.Navigation).List)

	maxUpload := cfg.Extensions.MaxUploadSize
	registerExtensionRoutes(admin, deps.Checker, extensionRouteDeps{
		Plugins:     handlers.NewPluginHandler(svc.Plugins, maxUpload),
		Themes:      handlers.NewThemeHandler(svc.Themes, maxUpload),
		Updates:     handlers.NewUpdateHandler(svc.Updates),
		Marketplace: handlers.NewMarketplaceHandler(svc.Marketplace),
	})
	registerContentRoutes(admin, deps.Checker, contentRouteDeps{
		Posts:  handlers.NewPostHandler(svc.Posts),
		Pages:  handlers.NewPageHandler(svc.Pages),
		Navbar: handlers.NewNavbarHandler(svc.Navbar),
	})
	registerAdminRoutes(admin, deps.Checker, adminRouteDeps{
		Settings:     handlers.NewSettingsHandler(svc.Settings, svc.ActionLogs, svc.Navigation, svc.Navbar, svc.Updates),
		Servers:      handlers.NewServerHandler(svc.Servers),
		Users:        handlers.NewUserHandler(svc.Users),
		Roles:        handlers.NewRoleHandler(svc.Roles),
		ActionLogs:   handlers.NewActionLogHandler(svc.ActionLogs),
		Translations: handlers.NewTranslationHandler(svc.Translations),
		Backups:      handlers.NewBackupHandler(svc.Backups),
	})
	if deps.Monitoring != nil {
		admin.GET("/monitoring", handlers.NewMonitoringHandler(deps.Monitoring).Summary)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func metricsEndpoint(cfg *app.Config) string {
	if cfg.Monitoring.Prometheus.Endpoint == "" {
		return "/metrics"
	}
	return cfg.Monitoring.Prometheus.Endpoint
}
