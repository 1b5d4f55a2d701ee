package api

import (
	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/handlers"
)

// Notifications are scoped to the caller, so no permission beyond a valid token is required.
func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.GET("/unread-count", handler.UnreadCount)
		group.POST("/read-all", handler.MarkAllRead)
		group.POST("/:id/read", handler.MarkRead)
		group.POST("/:id/unread", handler.MarkUnread)
		group.DELETE("/:id", handler.Delete)
	}
}
