package middleware

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type staticFlags map[string]bool

func (f staticFlags) GetBool(_ context.Context, key string, fallback bool) bool {
	if v, ok := f[key]; ok {
		return v
	}
	return fallback
}

func TestMaintenanceMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	flags := staticFlags{}

	r := gin.New()
	r.Use(Maintenance(flags))
	r.GET("/posts", func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, doGet(r, "/posts").Code)

	flags["maintenance.enabled"] = true
	w := doGet(r, "/posts")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "300", w.Header().Get("Retry-After"))
}
