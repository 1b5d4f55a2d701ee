package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/response"
)

const defaultActionLogsPerPage = 50

// ActionLogHandler lists the admin audit trail.
type ActionLogHandler struct {
	logs *services.ActionLogService
}

func NewActionLogHandler(logs *services.ActionLogService) *ActionLogHandler {
	return &ActionLogHandler{logs: logs}
}

// GET /api/admin/logs
func (h *ActionLogHandler) List(c *gin.Context) {
	page, perPage := pagination(c, defaultActionLogsPerPage)

	filters := services.ActionLogFilters{
		UserID:     strings.TrimSpace(c.Query("user_id")),
		Action:     strings.TrimSpace(c.Query("action")),
		EntityType: strings.TrimSpace(c.Query("entity_type")),
	}
	var err error
	if filters.Since, err = parseTimeQuery(c, "since"); err != nil {
		response.Error(c, err)
		return
	}
	if filters.Until, err = parseTimeQuery(c, "until"); err != nil {
		response.Error(c, err)
		return
	}

	logs, total, err := h.logs.List(requestContext(c), services.ActionLogListOptions{
		Page:     page,
		PageSize: perPage,
		Filters:  filters,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, logs, response.NewMeta(page, perPage, total))
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.NewBadRequest(key + " must be an RFC3339 timestamp")
	}
	return &parsed, nil
}
