package updates

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/marketplace"
	"github.com/exiloncms/exiloncms/pkg/metrics"
)

func TestGitHubSourceLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		require.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/repos/exilon/shop/releases/latest":
			_, _ = io.WriteString(w, `{
				"tag_name": "v1.3.0",
				"html_url": "https://github.com/exilon/shop/releases/tag/v1.3.0",
				"body": "changes",
				"zipball_url": "https://api.github.com/repos/exilon/shop/zipball/v1.3.0",
				"assets": [
					{"name": "checksums.txt", "browser_download_url": "https://example.com/checksums.txt"},
					{"name": "shop-1.3.0.zip", "browser_download_url": "https://example.com/shop-1.3.0.zip"}
				]
			}`)
		case "/repos/exilon/source-only/releases/latest":
			_, _ = io.WriteString(w, `{"tag_name": "2.0.0", "zipball_url": "https://example.com/zipball"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	source := NewGitHubSource(server.URL, "gh-token", server.Client())

	release, err := source.Latest(context.Background(), Target{GitHub: "https://github.com/exilon/shop.git"})
	require.NoError(t, err)
	require.Equal(t, "1.3.0", release.Version)
	require.Equal(t, "https://example.com/shop-1.3.0.zip", release.DownloadURL)
	require.Equal(t, "changes", release.Changelog)

	release, err = source.Latest(context.Background(), Target{GitHub: "exilon/source-only"})
	require.NoError(t, err)
	require.Equal(t, "https://example.com/zipball", release.DownloadURL)

	_, err = source.Latest(context.Background(), Target{GitHub: "exilon/missing"})
	require.ErrorIs(t, err, ErrNoRelease)

	require.True(t, source.Supports(Target{GitHub: "exilon/shop"}))
	require.False(t, source.Supports(Target{GitHub: "shop"}))
	require.False(t, source.Supports(Target{}))
}

type fakeResources map[string]*marketplace.Resource

func (f fakeResources) GetResource(_ context.Context, id string) (*marketplace.Resource, error) {
	if id == "boom" {
		return nil, errors.New("connection refused")
	}
	res, ok := f[id]
	if !ok {
		return nil, marketplace.ErrNotFound
	}
	return res, nil
}

func TestMarketplaceSourceLatest(t *testing.T) {
	source := NewMarketplaceSource(fakeResources{
		"42": {ID: "42", Version: "v2.1.0", DownloadURL: "https://market/42.zip"},
	})

	release, err := source.Latest(context.Background(), Target{MarketplaceID: "42"})
	require.NoError(t, err)
	require.Equal(t, "2.1.0", release.Version)

	_, err = source.Latest(context.Background(), Target{MarketplaceID: "7"})
	require.ErrorIs(t, err, ErrNoRelease)

	require.False(t, source.Supports(Target{GitHub: "a/b"}))
}

type staticSource struct {
	name     string
	releases map[string]string
	fail     map[string]bool
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) Supports(target Target) bool {
	_, ok := s.releases[target.ID]
	return ok || s.fail[target.ID]
}

func (s staticSource) Latest(_ context.Context, target Target) (*Release, error) {
	if s.fail[target.ID] {
		return nil, errors.New("remote unavailable")
	}
	return &Release{Version: s.releases[target.ID]}, nil
}

func TestCheckerReportsOnlyNewerReleases(t *testing.T) {
	checker := NewChecker(nil, staticSource{
		name:     "static",
		releases: map[string]string{"shop": "1.2.0", "vote": "1.0.0", "carbon": "3.0.0-beta.1"},
		fail:     map[string]bool{"broken": true},
	})

	updates := checker.Check(context.Background(), []Target{
		{Kind: "plugin", ID: "vote", CurrentVersion: "1.0.0"},
		{Kind: "plugin", ID: "shop", CurrentVersion: "1.1.9"},
		{Kind: "theme", ID: "carbon", CurrentVersion: "2.5.0"},
		{Kind: "plugin", ID: "broken", CurrentVersion: "1.0.0"},
		{Kind: "plugin", ID: "unknown", CurrentVersion: "1.0.0"},
	})

	require.Len(t, updates, 2)
	require.Equal(t, "shop", updates[0].ID)
	require.Equal(t, "1.2.0", updates[0].LatestVersion)
	require.Equal(t, "static", updates[0].Source)
	require.Equal(t, "carbon", updates[1].ID)
	require.Equal(t, "theme", updates[1].Kind)

	update, ok := checker.Latest(context.Background(), Target{Kind: "plugin", ID: "vote", CurrentVersion: "0.9.0"})
	require.True(t, ok)
	require.Equal(t, "1.0.0", update.LatestVersion)

	_, ok = checker.Latest(context.Background(), Target{Kind: "plugin", ID: "broken"})
	require.False(t, ok)
}

func TestCheckerFallsBackWhenGitHubFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/exilon/shop/releases/latest":
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
		case "/repos/exilon/vote/releases/latest":
			_, _ = io.WriteString(w, `{"tag_name": "v1.0.0"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	checker := NewChecker(
		NewGitHubSource(server.URL, "", server.Client()),
		NewMarketplaceSource(fakeResources{
			"11": {ID: "11", Version: "2.0.0", DownloadURL: "https://market/shop.zip"},
			"12": {ID: "12", Version: "3.0.0"},
			"13": {ID: "13", Version: "1.5.0"},
		}),
	)

	githubFailures := testutil.ToFloat64(metrics.UpdateChecks.WithLabelValues("github", "failure"))
	githubNone := testutil.ToFloat64(metrics.UpdateChecks.WithLabelValues("github", "none"))

	updates := checker.Check(context.Background(), []Target{
		{Kind: "plugin", ID: "shop", CurrentVersion: "1.0.0", GitHub: "exilon/shop", MarketplaceID: "11"},
		{Kind: "plugin", ID: "vote", CurrentVersion: "1.0.0", GitHub: "exilon/vote", MarketplaceID: "12"},
		{Kind: "plugin", ID: "wiki", CurrentVersion: "1.0.0", GitHub: "exilon/wiki", MarketplaceID: "13"},
	})

	// vote: GitHub answered with the current version, so the marketplace is not asked.
	require.Len(t, updates, 2)
	require.Equal(t, "shop", updates[0].ID)
	require.Equal(t, "2.0.0", updates[0].LatestVersion)
	require.Equal(t, "marketplace", updates[0].Source)
	require.Equal(t, "https://market/shop.zip", updates[0].Release.DownloadURL)
	require.Equal(t, "wiki", updates[1].ID)
	require.Equal(t, "1.5.0", updates[1].LatestVersion)
	require.Equal(t, "marketplace", updates[1].Source)

	require.Equal(t, githubFailures+1, testutil.ToFloat64(metrics.UpdateChecks.WithLabelValues("github", "failure")))
	require.Equal(t, githubNone+1, testutil.ToFloat64(metrics.UpdateChecks.WithLabelValues("github", "none")))

	update, ok := checker.Latest(context.Background(), Target{Kind: "plugin", ID: "shop", CurrentVersion: "1.0.0", GitHub: "exilon/shop", MarketplaceID: "11"})
	require.True(t, ok)
	require.Equal(t, "marketplace", update.Source)
}
