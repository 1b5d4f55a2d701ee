package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/exiloncms/exiloncms/internal/permissions"
	"github.com/exiloncms/exiloncms/internal/realtime"
	"github.com/exiloncms/exiloncms/pkg/logger"
)

// PermissionChecker evaluates a single permission.
type PermissionChecker interface {
	Check(ctx context.Context, userID, permissionID string) (bool, error)
}

// RealtimeHandler upgrades admin clients to the websocket hub.
type RealtimeHandler struct {
	hub     *realtime.Hub
	checker PermissionChecker
	log     *zap.Logger
}

func NewRealtimeHandler(hub *realtime.Hub, checker PermissionChecker) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, checker: checker, log: logger.WithModule("realtime")}
}

// GET /api/ws?streams=notifications,extensions
func (h *RealtimeHandler) Connect(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	allowed := map[string]struct{}{realtime.StreamNotifications: {}}
	if h.checker != nil {
		granted, err := h.checker.Check(requestContext(c), userID, permissions.AdminAccess)
		if err != nil {
			h.log.Warn("stream permission lookup failed", zap.String("user_id", userID), zap.Error(err))
		} else if granted {
			allowed[realtime.StreamExtensions] = struct{}{}
		}
	}

	streams := realtime.DefaultStreams
	if raw := strings.TrimSpace(c.Query("streams")); raw != "" {
		streams = strings.Split(raw, ",")
	}

	h.hub.Serve(userID, streams, allowed, c.Writer, c.Request)
}
