package api

import (
	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/handlers"
	"github.com/exiloncms/exiloncms/internal/middleware"
	"github.com/exiloncms/exiloncms/internal/permissions"
)

type extensionRouteDeps struct {
	Plugins     *handlers.PluginHandler
	Themes      *handlers.ThemeHandler
	Updates     *handlers.UpdateHandler
	Marketplace *handlers.MarketplaceHandler
}

func registerExtensionRoutes(admin *gin.RouterGroup, checker *permissions.Checker, deps extensionRouteDeps) {
	plugins := admin.Group("/plugins")
	plugins.Use(middleware.RequirePermission(checker, permissions.AdminPlugins))
	{
		plugins.GET("", deps.Plugins.List)
		plugins.POST("/upload", deps.Plugins.Upload)
		plugins.GET("/:id", deps.Plugins.Get)
		plugins.POST("/:id/toggle", deps.Plugins.Toggle)
		plugins.POST("/:id/enable", deps.Plugins.Enable)
		plugins.POST("/:id/disable", deps.Plugins.Disable)
		plugins.DELETE("/:id", deps.Plugins.Uninstall)
	}

	themes := admin.Group("/themes")
	themes.Use(middleware.RequirePermission(checker, permissions.AdminThemes))
	{
		themes.GET("", deps.Themes.List)
		themes.POST("/upload", deps.Themes.Upload)
		themes.POST("/deactivate", deps.Themes.Deactivate)
		themes.POST("/:id/activate", deps.Themes.Activate)
		themes.GET("/:id/config", deps.Themes.Config)
		themes.PUT("/:id/config", deps.Themes.UpdateConfig)
		themes.DELETE("/:id", deps.Themes.Uninstall)
	}

	updates := admin.Group("/updates")
	updates.Use(middleware.RequirePermission(checker, permissions.AdminUpdates))
	{
		updates.GET("", deps.Updates.Check)
		updates.GET("/counts", deps.Updates.Counts)
		updates.POST("/clear-cache", deps.Updates.ClearCache)
		updates.POST("/:kind/:id", deps.Updates.Apply)
	}

	market := admin.Group("/marketplace")
	market.Use(middleware.RequirePermission(checker, permissions.AdminUpdates))
	{
		market.GET("", deps.Marketplace.Browse)
		market.POST("/:id/install", deps.Marketplace.Install)
	}
}
