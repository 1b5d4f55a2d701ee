package api

import (
	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/handlers"
	"github.com/exiloncms/exiloncms/internal/middleware"
	"github.com/exiloncms/exiloncms/internal/permissions"
)

type contentRouteDeps struct {
	Posts  *handlers.PostHandler
	Pages  *handlers.PageHandler
	Navbar *handlers.NavbarHandler
}

func registerContentRoutes(admin *gin.RouterGroup, checker *permissions.Checker, deps contentRouteDeps) {
	posts := admin.Group("/posts")
	posts.Use(middleware.RequirePermission(checker, permissions.AdminPosts))
	{
		posts.GET("", deps.Posts.List)
		posts.POST("", deps.Posts.Create)
		posts.GET("/:id", deps.Posts.Get)
		posts.PATCH("/:id", deps.Posts.Update)
		posts.DELETE("/:id", deps.Posts.Delete)
	}

	pages := admin.Group("/pages")
	pages.Use(middleware.RequirePermission(checker, permissions.AdminPages))
	{
		pages.GET("", deps.Pages.List)
		pages.POST("", deps.Pages.Create)
		pages.GET("/:id", deps.Pages.Get)
		pages.PATCH("/:id", deps.Pages.Update)
		pages.DELETE("/:id", deps.Pages.Delete)
	}

	navbar := admin.Group("/navbar")
	navbar.Use(middleware.RequirePermission(checker, permissions.AdminNavbar))
	{
		navbar.GET("", deps.Navbar.Tree)
		navbar.POST("", deps.Navbar.Create)
		navbar.POST("/reorder", deps.Navbar.Reorder)
		navbar.PUT("/:id", deps.Navbar.Update)
		navbar.DELETE("/:id", deps.Navbar.Delete)
	}
}
