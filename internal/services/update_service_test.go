package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/events"
	"github.com/exiloncms/exiloncms/internal/updates"
)

type fakeSource struct {
	mu       sync.Mutex
	releases map[string]*updates.Release
	calls    int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Supports(target updates.Target) bool { return true }

func (f *fakeSource) Latest(_ context.Context, target updates.Target) (*updates.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	release, ok := f.releases[target.Kind+":"+target.ID]
	if !ok {
		return nil, updates.ErrNoRelease
	}
	copied := *release
	return &copied, nil
}

func (f *fakeSource) set(key string, release *updates.Release) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases[key] = release
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newUpdateFixture(t *testing.T) (*extensionFixture, *fakeSource, *UpdateService) {
	return newUpdateFixtureWithTTL(t, 0)
}

func newUpdateFixtureWithTTL(t *testing.T, ttl time.Duration) (*extensionFixture, *fakeSource, *UpdateService) {
	t.Helper()
	fx := newExtensionFixture(t)
	source := &fakeSource{releases: map[string]*updates.Release{}}

	svc, err := NewUpdateService(UpdateServiceConfig{
		TTL:            ttl,
		Registry:       fx.registry,
		Checker:        updates.NewChecker(source),
		Store:          cache.NewDatabaseStore(fx.db),
		Plugins:        fx.plugins,
		Themes:         fx.themes,
		Publisher:      fx.publisher,
		CoreVersion:    "1.2.0",
		CoreRepository: "ExilonStudios/ExilonCMS",
	})
	require.NoError(t, err)
	return fx, source, svc
}

func TestUpdateServiceCheckCachesResults(t *testing.T) {
	fx, source, svc := newUpdateFixture(t)
	ctx := context.Background()

	fx.writePlugin(t, "shop", `{"id":"shop","name":"Shop","version":"1.0.0"}`, nil)
	fx.writeTheme(t, "aurora", `{"id":"aurora","name":"Aurora","version":"2.0.0"}`)
	source.set("plugin:shop", &updates.Release{Version: "1.1.0", DownloadURL: "https://example.com/shop.zip"})
	source.set("theme:aurora", &updates.Release{Version: "2.0.0"})
	source.set("core:exiloncms", &updates.Release{Version: "1.3.0"})

	report, err := svc.Check(ctx, false)
	require.NoError(t, err)
	require.Len(t, report.Plugins, 1)
	require.Equal(t, "shop", report.Plugins[0].ID)
	require.Equal(t, "1.1.0", report.Plugins[0].LatestVersion)
	require.Empty(t, report.Themes)
	require.NotNil(t, report.Core)
	require.Equal(t, "1.3.0", report.Core.LatestVersion)
	require.False(t, report.CheckedAt.IsZero())

	calls := source.callCount()
	require.Equal(t, 3, calls)

	source.set("plugin:shop", &updates.Release{Version: "1.2.0"})
	cached, err := svc.Check(ctx, false)
	require.NoError(t, err)
	require.Equal(t, calls, source.callCount())
	require.Equal(t, "1.1.0", cached.Plugins[0].LatestVersion)

	fresh, err := svc.Check(ctx, true)
	require.NoError(t, err)
	require.Greater(t, source.callCount(), calls)
	require.Equal(t, "1.2.0", fresh.Plugins[0].LatestVersion)

	counts, err := svc.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, UpdateCounts{Plugins: 1, Themes: 0, Core: true, Total: 2}, counts)
}

func TestUpdateServiceRecomputesAfterTTL(t *testing.T) {
	fx, source, svc := newUpdateFixtureWithTTL(t, time.Second)
	ctx := context.Background()

	fx.writePlugin(t, "shop", `{"id":"shop","version":"1.0.0"}`, nil)
	source.set("plugin:shop", &updates.Release{Version: "1.1.0"})

	report, err := svc.Check(ctx, false)
	require.NoError(t, err)
	require.Equal(t, "1.1.0", report.Plugins[0].LatestVersion)

	source.set("plugin:shop", &updates.Release{Version: "1.4.0"})
	report, err = svc.Check(ctx, false)
	require.NoError(t, err)
	require.Equal(t, "1.1.0", report.Plugins[0].LatestVersion)

	time.Sleep(1500 * time.Millisecond)

	report, err = svc.Check(ctx, false)
	require.NoError(t, err)
	require.Len(t, report.Plugins, 1)
	require.Equal(t, "1.4.0", report.Plugins[0].LatestVersion)
}

func TestUpdateServiceInvalidateClearsCache(t *testing.T) {
	fx, source, svc := newUpdateFixture(t)
	ctx := context.Background()

	fx.writePlugin(t, "shop", `{"id":"shop","version":"1.0.0"}`, nil)

	report, err := svc.Check(ctx, false)
	require.NoError(t, err)
	require.Empty(t, report.Plugins)

	source.set("plugin:shop", &updates.Release{Version: "1.5.0"})
	report, err = svc.Check(ctx, false)
	require.NoError(t, err)
	require.Empty(t, report.Plugins)

	svc.Invalidate(ctx)

	report, err = svc.Check(ctx, false)
	require.NoError(t, err)
	require.Len(t, report.Plugins, 1)
}

func TestUpdateServiceAnnouncesOncePerVersion(t *testing.T) {
	fx, source, svc := newUpdateFixture(t)
	ctx := context.Background()

	fx.writePlugin(t, "shop", `{"id":"shop","version":"1.0.0"}`, nil)
	source.set("plugin:shop", &updates.Release{Version: "1.1.0"})

	_, err := svc.Check(ctx, true)
	require.NoError(t, err)
	_, err = svc.Check(ctx, true)
	require.NoError(t, err)
	require.Equal(t, []string{events.UpdatesAvailable}, fx.publisher.types())

	source.set("plugin:shop", &updates.Release{Version: "1.2.0"})
	_, err = svc.Check(ctx, true)
	require.NoError(t, err)
	require.Equal(t, []string{events.UpdatesAvailable, events.UpdatesAvailable}, fx.publisher.types())
}

func TestUpdateServiceApplyWithoutUpdate(t *testing.T) {
	fx, source, svc := newUpdateFixture(t)
	ctx := context.Background()

	fx.writePlugin(t, "shop", `{"id":"shop","version":"1.0.0"}`, nil)

	_, err := svc.Apply(ctx, "plugin", "shop")
	require.ErrorIs(t, err, ErrNoUpdate)

	source.set("plugin:shop", &updates.Release{Version: "2.0.0"})
	_, err = svc.Check(ctx, true)
	require.NoError(t, err)

	_, err = svc.Apply(ctx, "plugin", "shop")
	require.ErrorIs(t, err, ErrNoUpdate)

	_, err = svc.Apply(ctx, "widget", "shop")
	require.Error(t, err)
}

func TestUpdateServiceApplyInstallsRelease(t *testing.T) {
	fx, source, svc := newUpdateFixture(t)
	ctx := context.Background()

	fx.writePlugin(t, "shop", `{"id":"shop","name":"Shop","version":"1.0.0"}`, nil)
	fx.withDownloader(map[string][]byte{
		"https://example.com/shop-1.1.0.zip": zipArchive(t, map[string]string{
			"plugin.json": `{"id":"shop","name":"Shop","version":"1.1.0"}`,
		}),
	})
	source.set("plugin:shop", &updates.Release{Version: "1.1.0", DownloadURL: "https://example.com/shop-1.1.0.zip"})

	dto, err := svc.Apply(ctx, "plugin", "shop")
	require.NoError(t, err)
	require.Equal(t, "1.1.0", dto.Version)
	require.Equal(t, SourceUpdate, dto.Source)

	report, err := svc.Check(ctx, false)
	require.NoError(t, err)
	require.Empty(t, report.Plugins)
}
