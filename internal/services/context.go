package services

import (
	"context"

	"github.com/exiloncms/exiloncms/internal/auditctx"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// actorID returns the authenticated user attached to ctx, or "".
func actorID(ctx context.Context) string {
	actor, ok := auditctx.FromContext(ctx)
	if !ok {
		return ""
	}
	return actor.UserID
}
