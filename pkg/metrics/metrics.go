package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exiloncms_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// PermissionChecks counts permission evaluations and their outcome (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exiloncms_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exiloncms_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// InFlightRequests tracks requests currently being served.
	InFlightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exiloncms_http_in_flight_requests",
			Help: "HTTP requests currently being served",
		},
	)

	// ExtensionToggles counts enable/disable transitions per extension kind.
	ExtensionToggles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exiloncms_extension_toggles_total",
			Help: "Extension enable and disable operations",
		},
		[]string{"kind", "action", "result"},
	)

	// ExtensionInstalls counts install, update and uninstall operations.
	ExtensionInstalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exiloncms_extension_installs_total",
			Help: "Extension install, update and uninstall operations",
		},
		[]string{"kind", "operation", "result"},
	)

	// UpdateChecks counts remote update lookups by source (github|marketplace) and result.
	UpdateChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exiloncms_update_checks_total",
			Help: "Remote update lookups",
		},
		[]string{"source", "result"},
	)

	// AvailableUpdates exposes the last computed badge counts.
	AvailableUpdates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exiloncms_available_updates",
			Help: "Number of extensions with a newer version available",
		},
		[]string{"kind"},
	)

	// Backups counts database backup operations.
	Backups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exiloncms_backups_total",
			Help: "Database backup, optimize, export and import operations",
		},
		[]string{"operation", "result"},
	)

	// ScheduledJobs counts background job executions by job name and result.
	ScheduledJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exiloncms_scheduled_jobs_total",
			Help: "Background maintenance job executions",
		},
		[]string{"job", "result"},
	)
)

// Result converts an error into the conventional success|failure label.
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
