package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/database/testutil"
	"github.com/exiloncms/exiloncms/internal/events"
	"github.com/exiloncms/exiloncms/internal/extensions"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

type countingInvalidator struct {
	mu    sync.Mutex
	count int
}

func (c *countingInvalidator) Invalidate(context.Context) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *countingInvalidator) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

type extensionFixture struct {
	db         *gorm.DB
	registry   *extensions.Registry
	settings   *SettingsService
	actions    *ActionLogService
	publisher  *recordingPublisher
	pluginsDir string
	themesDir  string
	plugins    *PluginService
	themes     *ThemeService
}

func newExtensionFixture(t *testing.T) *extensionFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	root := t.TempDir()
	fx := &extensionFixture{
		db:         db,
		pluginsDir: filepath.Join(root, "plugins"),
		themesDir:  filepath.Join(root, "themes"),
		publisher:  &recordingPublisher{},
	}
	require.NoError(t, os.MkdirAll(fx.pluginsDir, 0o755))
	require.NoError(t, os.MkdirAll(fx.themesDir, 0o755))

	fx.registry = extensions.NewRegistry(fx.pluginsDir, fx.themesDir)
	installer, err := extensions.NewInstaller(fx.registry, filepath.Join(root, "tmp"), 1<<20)
	require.NoError(t, err)

	fx.settings, err = NewSettingsService(db, nil)
	require.NoError(t, err)
	fx.actions, err = NewActionLogService(db)
	require.NoError(t, err)

	deps := ExtensionDeps{
		DB:          db,
		Registry:    fx.registry,
		Installer:   installer,
		Settings:    fx.settings,
		ActionLogs:  fx.actions,
		Publisher:   fx.publisher,
		CoreVersion: "1.2.0",
	}
	migrator, err := extensions.NewMigrator(db)
	require.NoError(t, err)

	fx.plugins, err = NewPluginService(deps, migrator)
	require.NoError(t, err)
	fx.themes, err = NewThemeService(deps)
	require.NoError(t, err)
	return fx
}

// writeExtension creates <root>/<id>/<manifest> plus any extra files.
func writeExtension(t *testing.T, root, manifestFile, id, manifest string, extra map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFile), []byte(manifest), 0o644))
	for name, content := range extra {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func (fx *extensionFixture) writePlugin(t *testing.T, id, manifest string, extra map[string]string) string {
	return writeExtension(t, fx.pluginsDir, "plugin.json", id, manifest, extra)
}

func (fx *extensionFixture) writeTheme(t *testing.T, id, manifest string) string {
	return writeExtension(t, fx.themesDir, "theme.json", id, manifest, nil)
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type fakeDownloader struct {
	archives map[string][]byte
}

func (d *fakeDownloader) Download(_ context.Context, url string) (io.ReadCloser, int64, error) {
	data, ok := d.archives[url]
	if !ok {
		return nil, 0, errors.New("404 not found")
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// withDownloader lets both services fetch archives from the given map.
func (fx *extensionFixture) withDownloader(archives map[string][]byte) {
	downloader := &fakeDownloader{archives: archives}
	fx.plugins.deps.Downloader = downloader
	fx.themes.deps.Downloader = downloader
}
