package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/exiloncms/exiloncms/pkg/logger"
	"github.com/exiloncms/exiloncms/pkg/response"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	t.Cleanup(logger.Replace(zap.New(core)))
	return logs
}

func TestRequestIDReusesOrMints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/api/pages", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxRequestIDKey)) })

	req := httptest.NewRequest(http.MethodGet, "/api/pages", nil)
	req.Header.Set(RequestIDHeader, "edge-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "edge-42", w.Header().Get(RequestIDHeader))
	require.Equal(t, "edge-42", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/pages", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 100))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestLoggerRecordsRouteAndSkipsHealthyProbes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observeLogs(t)

	r := gin.New()
	r.Use(RequestID(), Logger("/health"))
	r.GET("/health/live", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health/ready", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	r.GET("/api/posts/:slug", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/health/live", "/health/ready", "/api/posts/launch"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "request failed", entries[0].Message)
	require.Equal(t, "/health/ready", entries[0].ContextMap()["path"])

	rejected := entries[1].ContextMap()
	require.Equal(t, "request rejected", entries[1].Message)
	require.Equal(t, "/api/posts/:slug", rejected["route"])
	require.EqualValues(t, http.StatusNotFound, rejected["status"])
	require.NotEmpty(t, rejected["request_id"])
}

func TestRecoveryReturnsEnvelopeAndLogsPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observeLogs(t)

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/api/admin/plugins", func(*gin.Context) { panic("manifest cache corrupted") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/plugins", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.Equal(t, "INTERNAL_SERVER_ERROR", payload.Error.Code)

	panics := logs.FilterMessage("handler panic").All()
	require.Len(t, panics, 1)
	require.Equal(t, w.Header().Get(RequestIDHeader), panics[0].ContextMap()["request_id"])
}

func TestNotFoundHandlerNamesRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.NoRoute(NotFoundHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/widgets", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "NOT_FOUND", payload.Error.Code)
	require.Equal(t, "no route for DELETE /api/widgets", payload.Error.Message)
}
