package api

import (
	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/handlers"
)

func registerAuthRoutes(api *gin.RouterGroup, handler *handlers.AuthHandler) {
	auth := api.Group("/auth")
	{
		auth.GET("/me", handler.Me)
		auth.POST("/logout", handler.Logout)
		auth.PUT("/password", handler.ChangePassword)
	}
}

func registerInstallRoutes(r *gin.Engine, handler *handlers.InstallHandler) {
	install := r.Group("/api/install")
	{
		install.GET("/status", handler.Status)
		install.POST("", handler.Install)
	}
}
