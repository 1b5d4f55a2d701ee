package services

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/database/testutil"
	"github.com/exiloncms/exiloncms/internal/models"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
)

type fakeDialer struct {
	mu        sync.Mutex
	online    map[string]bool
	addresses []string
}

func (d *fakeDialer) dial(_ context.Context, _, address string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addresses = append(d.addresses, address)
	if !d.online[address] {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	_ = server.Close()
	return client, nil
}

func (d *fakeDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.addresses)
}

func TestServerServiceDefaults(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	svc, err := NewServerService(db, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	lobby, err := svc.Create(ctx, ServerInput{Name: "Lobby", Address: "play.example.com", IsDefault: true})
	require.NoError(t, err)
	require.Equal(t, 25565, lobby.Port)
	require.Equal(t, models.ServerTypeTCP, lobby.Type)

	survival, err := svc.Create(ctx, ServerInput{Name: "Survival", Address: "survival.example.com", Port: 25566, Type: "minecraft", IsDefault: true})
	require.NoError(t, err)
	require.Equal(t, 1, survival.Position)

	reloaded, err := svc.Get(ctx, lobby.ID)
	require.NoError(t, err)
	require.False(t, reloaded.IsDefault)

	_, err = svc.Create(ctx, ServerInput{Name: "Staff", Address: "10.0.0.2", IsHidden: true})
	require.NoError(t, err)

	visible, err := svc.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	all, err := svc.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 3)

	_, err = svc.Create(ctx, ServerInput{Name: "Bad", Address: "x", Port: 70000})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
	_, err = svc.Create(ctx, ServerInput{Name: "Bad", Address: "x", Type: "quake"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	require.NoError(t, svc.Delete(ctx, lobby.ID))
	require.ErrorIs(t, svc.Delete(ctx, lobby.ID), ErrServerNotFound)
}

func TestServerServiceStatusIsCached(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	svc, err := NewServerService(db, cache.NewDatabaseStore(db), nil)
	require.NoError(t, err)
	dialer := &fakeDialer{online: map[string]bool{"play.example.com:25565": true}}
	svc.dial = dialer.dial
	ctx := context.Background()

	up, err := svc.Create(ctx, ServerInput{Name: "Lobby", Address: "play.example.com"})
	require.NoError(t, err)
	down, err := svc.Create(ctx, ServerInput{Name: "Old", Address: "old.example.com"})
	require.NoError(t, err)

	status, err := svc.Status(ctx, up.ID)
	require.NoError(t, err)
	require.True(t, status.Online)
	require.Equal(t, up.ID, status.ServerID)

	_, err = svc.Status(ctx, up.ID)
	require.NoError(t, err)
	require.Equal(t, 1, dialer.calls())

	status, err = svc.Status(ctx, down.ID)
	require.NoError(t, err)
	require.False(t, status.Online)

	_, err = svc.Update(ctx, up.ID, ServerInput{Name: "Lobby", Address: "play.example.com", Port: 25570})
	require.NoError(t, err)
	status, err = svc.Status(ctx, up.ID)
	require.NoError(t, err)
	require.False(t, status.Online)
	require.Equal(t, 3, dialer.calls())

	_, err = svc.Status(ctx, "missing")
	require.ErrorIs(t, err, ErrServerNotFound)
}
