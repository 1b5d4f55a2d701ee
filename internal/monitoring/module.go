package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Module bundles health probes, job history and the metrics endpoint.
type Module struct {
	gatherer prometheus.Gatherer
	health   *HealthManager
	jobs     *JobTracker
}

// NewModule constructs a module exposing the default Prometheus registry,
// which already carries the Go and process collectors.
func NewModule() *Module {
	return &Module{
		gatherer: prometheus.DefaultGatherer,
		health:   NewHealthManager(),
		jobs:     NewJobTracker(),
	}
}

// Handler serves Prometheus metrics.
func (m *Module) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Health exposes the health manager responsible for liveness and readiness probes.
func (m *Module) Health() *HealthManager {
	if m == nil {
		return nil
	}
	return m.health
}

// Jobs exposes the scheduled job tracker.
func (m *Module) Jobs() *JobTracker {
	if m == nil {
		return nil
	}
	return m.jobs
}
