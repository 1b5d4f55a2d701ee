package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// FlagReader is satisfied by the settings service.
type FlagReader interface {
	GetBool(ctx context.Context, key string, fallback bool) bool
}

var errMaintenance = &errors.AppError{
	Code:       "MAINTENANCE",
	Message:    "The site is under maintenance",
	StatusCode: http.StatusServiceUnavailable,
}

// Maintenance answers 503 on public routes while maintenance mode is enabled.
func Maintenance(settings FlagReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if settings != nil && settings.GetBool(c.Request.Context(), database.SettingMaintenanceEnabled, false) {
			c.Header("Retry-After", "300")
			response.Error(c, errMaintenance)
			c.Abort()
			return
		}
		c.Next()
	}
}
