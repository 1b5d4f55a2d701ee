package api

import (
	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/handlers"
	"github.com/exiloncms/exiloncms/internal/middleware"
	"github.com/exiloncms/exiloncms/internal/permissions"
)

type adminRouteDeps struct {
	Settings     *handlers.SettingsHandler
	Servers      *handlers.ServerHandler
	Users        *handlers.UserHandler
	Roles        *handlers.RoleHandler
	ActionLogs   *handlers.ActionLogHandler
	Translations *handlers.TranslationHandler
	Backups      *handlers.BackupHandler
}

func registerAdminRoutes(admin *gin.RouterGroup, checker *permissions.Checker, deps adminRouteDeps) {
	settings := admin.Group("/settings")
	settings.Use(middleware.RequirePermission(checker, permissions.AdminSettings))
	{
		settings.GET("", deps.Settings.List)
		settings.PUT("", deps.Settings.Update)
		settings.POST("/clear-cache", deps.Settings.ClearCache)
	}

	servers := admin.Group("/servers")
	servers.Use(middleware.RequirePermission(checker, permissions.AdminServers))
	{
		servers.GET("", deps.Servers.List)
		servers.POST("", deps.Servers.Create)
		servers.PUT("/:id", deps.Servers.Update)
		servers.DELETE("/:id", deps.Servers.Delete)
	}

	users := admin.Group("/users")
	users.Use(middleware.RequirePermission(checker, permissions.AdminUsers))
	{
		users.GET("", deps.Users.List)
		users.POST("", deps.Users.Create)
		users.GET("/:id", deps.Users.Get)
		users.PATCH("/:id", deps.Users.Update)
		users.DELETE("/:id", deps.Users.Delete)
		users.PUT("/:id/roles", deps.Users.SetRoles)
		users.PUT("/:id/password", deps.Users.ChangePassword)
	}

	roles := admin.Group("/roles")
	roles.Use(middleware.RequirePermission(checker, permissions.AdminUsers))
	{
		roles.GET("", deps.Roles.List)
		roles.POST("", deps.Roles.Create)
		roles.GET("/:id", deps.Roles.Get)
		roles.PATCH("/:id", deps.Roles.Update)
		roles.DELETE("/:id", deps.Roles.Delete)
		roles.PUT("/:id/permissions", deps.Roles.SetPermissions)
	}
	admin.GET("/permissions", middleware.RequirePermission(checker, permissions.AdminUsers), deps.Roles.Permissions)

	admin.GET("/logs", middleware.RequirePermission(checker, permissions.AdminLogs), deps.ActionLogs.List)

	translations := admin.Group("/translations")
	translations.Use(middleware.RequirePermission(checker, permissions.AdminTranslations))
	{
		translations.GET("", deps.Translations.Locales)
		translations.PUT("", deps.Translations.Set)
		translations.GET("/:locale", deps.Translations.List)
		translations.DELETE("/:locale/:group/:key", deps.Translations.Delete)
	}

	backups := admin.Group("/backups")
	backups.Use(middleware.RequirePermission(checker, permissions.AdminBackups))
	{
		backups.GET("", deps.Backups.List)
		backups.POST("", deps.Backups.Create)
		backups.GET("/:name", deps.Backups.Download)
		backups.DELETE("/:name", deps.Backups.Delete)
	}

	db := admin.Group("/database")
	db.Use(middleware.RequirePermission(checker, permissions.AdminBackups))
	{
		db.POST("/optimize", deps.Backups.Optimize)
		db.GET("/export", deps.Backups.Export)
		db.POST("/import", deps.Backups.Import)
	}
}
