package api

import (
	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/handlers"
)

type publicRouteDeps struct {
	Posts        *handlers.PostHandler
	Pages        *handlers.PageHandler
	Navbar       *handlers.NavbarHandler
	Servers      *handlers.ServerHandler
	Translations *handlers.TranslationHandler
}

// registerPublicRoutes mounts the read-only site API used by themes.
func registerPublicRoutes(public *gin.RouterGroup, deps publicRouteDeps) {
	public.GET("/posts", deps.Posts.ListPublished)
	public.GET("/posts/:slug", deps.Posts.GetPublished)
	public.GET("/pages/:slug", deps.Pages.GetEnabled)
	public.GET("/navbar", deps.Navbar.Tree)
	public.GET("/servers", deps.Servers.ListVisible)
	public.GET("/servers/:id/status", deps.Servers.Status)
	public.GET("/translations/:locale", deps.Translations.Export)
}
