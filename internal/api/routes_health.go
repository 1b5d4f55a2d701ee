package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/app"
	"github.com/exiloncms/exiloncms/internal/monitoring"
)

type healthEvaluator func(ctx context.Context) monitoring.HealthReport

// registerHealthRoutes exposes /health as a compact summary for uptime
// monitors and /health/live, /health/ready with per-check detail for
// orchestrators. Without a monitoring module every probe reports up.
func registerHealthRoutes(r *gin.Engine, mon *monitoring.Module) {
	live, ready := alwaysUp, alwaysUp
	if mon != nil && mon.Health() != nil {
		live, ready = mon.Health().EvaluateLiveness, mon.Health().EvaluateReadiness
	}

	r.GET("/health", healthHandler(ready, false))
	r.GET("/health/live", healthHandler(live, true))
	r.GET("/health/ready", healthHandler(ready, true))
}

func healthHandler(evaluate healthEvaluator, detailed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := evaluate(c.Request.Context())
		body := gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"version":    app.Version,
			"checked_at": time.Now().UTC(),
		}
		if detailed {
			body["checks"] = report.Checks
		}

		code := http.StatusOK
		if !report.Success {
			code = http.StatusServiceUnavailable
		}
		c.Header("Cache-Control", "no-store")
		c.JSON(code, body)
	}
}

func alwaysUp(context.Context) monitoring.HealthReport {
	return monitoring.HealthReport{Success: true, Status: monitoring.StatusUp}
}
