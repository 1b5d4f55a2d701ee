package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/extensions"
	"github.com/exiloncms/exiloncms/internal/marketplace"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
)

type fakeCatalog struct {
	resources []marketplace.Resource
	err       error
	lists     int
}

func (c *fakeCatalog) ListResources(_ context.Context, resourceType string) ([]marketplace.Resource, error) {
	c.lists++
	if c.err != nil {
		return nil, c.err
	}
	var out []marketplace.Resource
	for _, r := range c.resources {
		if r.Type == resourceType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *fakeCatalog) GetResource(_ context.Context, id string) (*marketplace.Resource, error) {
	if c.err != nil {
		return nil, c.err
	}
	for _, r := range c.resources {
		if r.ID == id {
			copied := r
			return &copied, nil
		}
	}
	return nil, marketplace.ErrNotFound
}

func TestMarketplaceServiceBrowse(t *testing.T) {
	fx := newExtensionFixture(t)
	catalog := &fakeCatalog{resources: []marketplace.Resource{
		{ID: "12", Type: "plugin", Name: "Shop", Version: "1.0.0"},
		{ID: "13", Type: "theme", Name: "Aurora", Version: "2.0.0"},
	}}
	svc := NewMarketplaceService(catalog, cache.NewDatabaseStore(fx.db), fx.plugins, fx.themes)
	ctx := context.Background()

	plugins := svc.Browse(ctx, extensions.KindPlugin)
	require.Len(t, plugins, 1)
	require.Equal(t, "Shop", plugins[0].Name)

	_ = svc.Browse(ctx, extensions.KindPlugin)
	require.Equal(t, 1, catalog.lists)

	themes := svc.Browse(ctx, extensions.KindTheme)
	require.Len(t, themes, 1)
	require.Equal(t, 2, catalog.lists)
}

func TestMarketplaceServiceDegradesWhenUnavailable(t *testing.T) {
	fx := newExtensionFixture(t)
	catalog := &fakeCatalog{err: errors.New("connection refused")}
	svc := NewMarketplaceService(catalog, nil, fx.plugins, fx.themes)
	ctx := context.Background()

	require.Empty(t, svc.Browse(ctx, extensions.KindPlugin))
	require.NotNil(t, svc.Browse(ctx, extensions.KindPlugin))

	_, err := svc.Install(ctx, "12")
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	disabled := NewMarketplaceService(nil, nil, fx.plugins, fx.themes)
	require.Empty(t, disabled.Browse(ctx, extensions.KindTheme))
	_, err = disabled.Install(ctx, "12")
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestMarketplaceServiceInstall(t *testing.T) {
	fx := newExtensionFixture(t)
	fx.withDownloader(map[string][]byte{
		"https://market.example.com/12.zip": zipArchive(t, map[string]string{"shop/plugin.json": `{"id":"shop","name":"Shop","version":"1.0.0"}`}),
		"https://market.example.com/13.zip": zipArchive(t, map[string]string{"aurora/theme.json": `{"id":"aurora","name":"Aurora","version":"2.0.0"}`}),
	})
	catalog := &fakeCatalog{resources: []marketplace.Resource{
		{ID: "12", Type: "plugin", Name: "Shop", DownloadURL: "https://market.example.com/12.zip"},
		{ID: "13", Type: "theme", Name: "Aurora", DownloadURL: "https://market.example.com/13.zip"},
		{ID: "14", Type: "plugin", Name: "Paid"},
	}}
	svc := NewMarketplaceService(catalog, nil, fx.plugins, fx.themes)
	ctx := context.Background()

	plugin, err := svc.Install(ctx, "12")
	require.NoError(t, err)
	require.Equal(t, "shop", plugin.ID)
	require.Equal(t, SourceMarketplace, plugin.Source)
	require.DirExists(t, fx.pluginsDir+"/shop")

	theme, err := svc.Install(ctx, "13")
	require.NoError(t, err)
	require.Equal(t, "theme", theme.Kind)

	_, err = svc.Install(ctx, "14")
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
	_, err = svc.Install(ctx, "99")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
