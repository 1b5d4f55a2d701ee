package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/logger"
	"github.com/exiloncms/exiloncms/pkg/response"
)

const rateSweepInterval = time.Minute

// RateStore counts hits of a key within a fixed window and reports the time
// left until the window resets.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// RateStoreFunc adapts a function to RateStore.
type RateStoreFunc func(ctx context.Context, key string, window time.Duration) (int, time.Duration, error)

// Increment calls f.
func (f RateStoreFunc) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	return f(ctx, key, window)
}

// NewCacheRateStore counts through the shared cache so limits hold across
// instances once redis is configured. A nil store yields a nil RateStore.
func NewCacheRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return RateStoreFunc(func(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
		count, ttl, err := store.IncrementWithTTL(ctx, key, window)
		return int(count), ttl, err
	})
}

type rateWindow struct {
	hits   int
	resets time.Time
}

// localRateStore keeps counters in process memory for single instance sites.
type localRateStore struct {
	mu        sync.Mutex
	windows   map[string]rateWindow
	now       func() time.Time
	nextSweep time.Time
}

// NewMemoryRateStore returns a process local RateStore.
func NewMemoryRateStore() RateStore {
	return &localRateStore{windows: make(map[string]rateWindow), now: time.Now}
}

func (s *localRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.After(s.nextSweep) {
		for k, w := range s.windows {
			if !now.Before(w.resets) {
				delete(s.windows, k)
			}
		}
		s.nextSweep = now.Add(rateSweepInterval)
	}

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resets) {
		w = rateWindow{resets: now.Add(window)}
	}
	w.hits++
	s.windows[key] = w
	return w.hits, w.resets.Sub(now), nil
}

// RateLimit allows maxRequests per client IP and route template within each
// window. A nil store counts in memory; a failing store lets requests through.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	if maxRequests <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if store == nil {
		store = NewMemoryRateStore()
	}
	log := logger.WithModule("http")
	limit := strconv.Itoa(maxRequests)

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		hits, resetIn, err := store.Increment(c.Request.Context(), "ratelimit:"+c.ClientIP()+"|"+route, window)
		if err != nil {
			log.Warn("rate limit store failed", zap.Error(err))
			c.Next()
			return
		}

		resetSeconds := int(resetIn.Round(time.Second).Seconds())
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, maxRequests-hits)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetSeconds))

		if hits > maxRequests {
			c.Header("Retry-After", strconv.Itoa(max(1, resetSeconds)))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}
		c.Next()
	}
}
