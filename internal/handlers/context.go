package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/middleware"
	"github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated user or writes a 401.
func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}
