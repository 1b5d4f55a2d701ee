package auditctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithActor(context.Background(), Actor{UserID: "u1", IPAddress: "10.0.0.1"})
	actor, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "u1", actor.UserID)

	actor, ok = FromContext(CLI(context.Background(), "root"))
	require.True(t, ok)
	require.Equal(t, "cli", actor.Source)
}
