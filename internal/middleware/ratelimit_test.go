package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/database/testutil"
)

func doGet(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(nil, 2, 100*time.Millisecond))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, doGet(r, "/ping").Code)
	}

	w := doGet(r, "/ping")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, http.StatusOK, doGet(r, "/ping").Code)
}

func TestRateLimitWithCacheStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewCacheRateStore(cache.NewDatabaseStore(db))
	require.Nil(t, NewCacheRateStore(nil))

	r := gin.New()
	r.Use(RateLimit(store, 1, time.Minute))
	r.GET("/a", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/b", func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, doGet(r, "/a").Code)
	require.Equal(t, http.StatusTooManyRequests, doGet(r, "/a").Code)
	require.Equal(t, http.StatusOK, doGet(r, "/b").Code)
}

func TestRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(nil, 0, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, doGet(r, "/ping").Code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	broken := RateStoreFunc(func(context.Context, string, time.Duration) (int, time.Duration, error) {
		return 0, 0, stderrors.New("redis: connection refused")
	})

	r := gin.New()
	r.Use(RateLimit(broken, 1, time.Minute))
	r.GET("/api/posts", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, doGet(r, "/api/posts").Code)
	}
}

func TestMemoryRateStoreSweepsExpiredWindows(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := &localRateStore{windows: map[string]rateWindow{}, now: func() time.Time { return now }}
	ctx := context.Background()

	hits, ttl, err := store.Increment(ctx, "a", 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, hits)
	require.Equal(t, 30*time.Second, ttl)

	hits, _, _ = store.Increment(ctx, "a", 30*time.Second)
	require.Equal(t, 2, hits)

	now = now.Add(2 * time.Minute)
	hits, _, _ = store.Increment(ctx, "b", 30*time.Second)
	require.Equal(t, 1, hits)
	require.Len(t, store.windows, 1)
}
