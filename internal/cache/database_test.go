package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/database/testutil"
)

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store := NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "settings:site.name", []byte("Exilon"), 0))
	value, ok, err := store.Get(ctx, "settings:site.name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Exilon", string(value))

	require.NoError(t, store.Set(ctx, "settings:site.name", []byte("Renamed"), time.Minute))
	value, _, err = store.Get(ctx, "settings:site.name")
	require.NoError(t, err)
	require.Equal(t, "Renamed", string(value))

	require.NoError(t, store.Delete(ctx, "settings:site.name"))
	_, ok, err = store.Get(ctx, "settings:site.name")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStoreExpiry(t *testing.T) {
	store := NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("x"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := store.Get(ctx, "short")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	store := NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "ratelimit:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Greater(t, ttl, time.Duration(0))

	count, _, err = store.IncrementWithTTL(ctx, "ratelimit:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestDatabaseStoreDeletePrefix(t *testing.T) {
	store := NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "updates:plugin", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "updates:theme", []byte("2"), 0))
	require.NoError(t, store.Set(ctx, "settings:theme", []byte("3"), 0))

	require.NoError(t, store.DeletePrefix(ctx, "updates:"))

	_, ok, _ := store.Get(ctx, "updates:plugin")
	require.False(t, ok)
	_, ok, _ = store.Get(ctx, "updates:theme")
	require.False(t, ok)
	_, ok, _ = store.Get(ctx, "settings:theme")
	require.True(t, ok)

	require.Error(t, store.DeletePrefix(ctx, ""))
}

func TestDatabaseStoreDeletePrefixMatchesLiterally(t *testing.T) {
	store := NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	ctx := context.Background()

	for _, key := range []string{"a%b:1", "ab:1", "a_b:1", "axb:1", "a!b:1"} {
		require.NoError(t, store.Set(ctx, key, []byte("x"), 0))
	}

	require.NoError(t, store.DeletePrefix(ctx, "a%b"))
	require.NoError(t, store.DeletePrefix(ctx, "a_b"))

	for key, kept := range map[string]bool{"a%b:1": false, "a_b:1": false, "ab:1": true, "axb:1": true, "a!b:1": true} {
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, kept, ok, key)
	}

	require.NoError(t, store.DeletePrefix(ctx, "a!b"))
	_, ok, err := store.Get(ctx, "a!b:1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	store := NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	ctx := context.Background()

	type payload struct {
		Count int `json:"count"`
	}
	require.NoError(t, SetJSON(ctx, store, "doc", payload{Count: 3}, time.Minute))

	got, ok, err := GetJSON[payload](ctx, store, "doc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, got.Count)

	require.NoError(t, store.Set(ctx, "broken", []byte("{"), 0))
	_, ok, err = GetJSON[payload](ctx, store, "broken")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = GetJSON[payload](ctx, nil, "doc")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNilDatabaseStore(t *testing.T) {
	require.Nil(t, NewDatabaseStore(nil))

	var store *DatabaseStore
	require.Error(t, store.Set(context.Background(), "k", nil, 0))
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	store := NewDatabaseStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "forever", []byte("x"), 0))
	require.NoError(t, store.Set(ctx, "later", []byte("x"), time.Hour))
	require.NoError(t, store.Set(ctx, "gone", []byte("x"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	for _, key := range []string{"forever", "later"} {
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok, key)
	}
}
