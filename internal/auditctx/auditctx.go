// Package auditctx carries the acting admin through service calls so action
// logs and lifecycle events can name who did what.
package auditctx

import "context"

// Actor is the authenticated user behind a request, or the CLI operator.
type Actor struct {
	UserID    string
	Username  string
	IPAddress string
	Source    string
}

type actorKey struct{}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// FromContext returns the actor stored by WithActor.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// CLI marks work started from the operator command line.
func CLI(ctx context.Context, username string) context.Context {
	return WithActor(ctx, Actor{Username: username, Source: "cli"})
}
