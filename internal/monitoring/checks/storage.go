package checks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/monitoring"
)

const (
	defaultDatabaseTimeout = 2 * time.Second
	defaultRedisTimeout    = 2 * time.Second
)

// RedisPinger is satisfied by the cache package's redis wrapper.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Database pings the CMS database and reports the driver with connection pool
// usage. A ping slower than half the timeout marks the database as degraded.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	limit := positiveOr(timeout, defaultDatabaseTimeout)
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		started := time.Now()
		if db == nil {
			return probe(monitoring.StatusDown, "no database handle", started)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(started))
		}

		pingCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			return monitoring.ResultFromError("database", err, time.Since(started))
		}

		stats := sqlDB.Stats()
		details := fmt.Sprintf("%s: %d open, %d in use", db.Dialector.Name(), stats.OpenConnections, stats.InUse)
		return probe(slowStatus(time.Since(started), limit), details, started)
	})
}

// Redis probes the shared cache. Sites running without redis fall back to the
// database cache, so a disabled redis is healthy while a configured but
// unreachable one only degrades readiness.
func Redis(client RedisPinger, enabled bool, timeout time.Duration) monitoring.Check {
	limit := positiveOr(timeout, defaultRedisTimeout)
	return monitoring.NewCheck("redis", func(ctx context.Context) monitoring.ProbeResult {
		started := time.Now()
		switch {
		case !enabled:
			return probe(monitoring.StatusUp, "redis disabled, using database cache", started)
		case client == nil:
			return probe(monitoring.StatusDegraded, "redis unreachable at startup, using database cache", started)
		}

		pingCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := client.Ping(pingCtx); err != nil {
			return monitoring.ResultFromError("redis", err, time.Since(started))
		}
		return probe(slowStatus(time.Since(started), limit), "", started)
	})
}

func probe(status monitoring.ProbeStatus, details string, started time.Time) monitoring.ProbeResult {
	return monitoring.ProbeResult{Status: status, Details: details, Duration: time.Since(started)}
}

func slowStatus(elapsed, limit time.Duration) monitoring.ProbeStatus {
	if elapsed > limit/2 {
		return monitoring.StatusDegraded
	}
	return monitoring.StatusUp
}

func positiveOr(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
