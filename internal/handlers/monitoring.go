package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/monitoring"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// MonitoringHandler reports background job state to administrators.
type MonitoringHandler struct {
	module *monitoring.Module
}

func NewMonitoringHandler(module *monitoring.Module) *MonitoringHandler {
	return &MonitoringHandler{module: module}
}

// GET /api/admin/monitoring
func (h *MonitoringHandler) Summary(c *gin.Context) {
	report := h.module.Health().EvaluateReadiness(requestContext(c))
	response.Success(c, http.StatusOK, gin.H{
		"health": report,
		"jobs":   h.module.Jobs().Snapshot(),
	})
}
