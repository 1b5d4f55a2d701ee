package extensions

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseManifestAcceptsPluginID(t *testing.T) {
	m, err := ParseManifest([]byte(`{"plugin_id":"shop","name":"Shop","version":"1.2.0","author":"Exilon"}`), KindPlugin)
	require.NoError(t, err)
	require.Equal(t, "shop", m.ID)
	require.Equal(t, "1.2.0", m.Version)
	require.Equal(t, []string{"Exilon"}, m.Authors)
	require.Equal(t, KindPlugin, m.Kind)
}

func TestParseManifestPrefersID(t *testing.T) {
	m, err := ParseManifest([]byte(`{"id":"vote","plugin_id":"other","author":["a","b"]}`), KindPlugin)
	require.NoError(t, err)
	require.Equal(t, "vote", m.ID)
	require.Equal(t, "vote", m.Name, "name defaults to id")
	require.Equal(t, "1.0.0", m.Version)
	require.Equal(t, []string{"a", "b"}, m.Authors)
}

func TestParseManifestThemeID(t *testing.T) {
	m, err := ParseManifest([]byte(`{"theme_id":"carbon","name":"Carbon"}`), KindTheme)
	require.NoError(t, err)
	require.Equal(t, "carbon", m.ID)
}

func TestParseManifestRejectsInvalid(t *testing.T) {
	cases := map[string]struct {
		body string
		err  error
	}{
		"not json":      {`{`, ErrInvalidManifest},
		"missing id":    {`{"name":"x"}`, ErrMissingID},
		"uppercase id":  {`{"id":"Shop"}`, ErrInvalidID},
		"path id":       {`{"id":"../shop"}`, ErrInvalidID},
		"trailing dash": {`{"id":"shop-"}`, ErrInvalidID},
		"too long":      {`{"id":"` + strings.Repeat("a", 65) + `"}`, ErrInvalidID},
		"bad section":   {`{"id":"shop","admin_sections":[{"label":"Shop"}]}`, ErrInvalidSection},
		"bad perm":      {`{"id":"shop","permissions":[{"id":"shop manage"}]}`, ErrInvalidPermission},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tc.body), KindPlugin)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestLoadManifestFromDir(t *testing.T) {
	root := t.TempDir()
	dir := writeExtension(t, root, KindPlugin, "shop", `{
		"id": "shop",
		"name": "Shop",
		"version": "2.0.0",
		"github": "exilon/shop",
		"admin_sections": [{"label":"Shop","route":"/admin/shop","position":30,"permission":"shop.manage"}]
	}`)

	m, err := LoadManifest(dir, KindPlugin)
	require.NoError(t, err)
	require.Equal(t, dir, m.Path)
	require.Equal(t, "exilon/shop", m.GitHub)
	require.Len(t, m.AdminSections, 1)
	require.Equal(t, 30, m.AdminSections[0].Position)

	_, err = LoadManifest(filepath.Join(root, "missing"), KindPlugin)
	require.ErrorIs(t, err, ErrManifestNotFound)
}

func TestManifestSupportsCore(t *testing.T) {
	m := &Manifest{Requires: map[string]string{"exiloncms": ">=1.2.0"}}
	require.Equal(t, "1.2.0", m.MinCoreVersion())
	require.True(t, m.SupportsCore("v1.2.0"))
	require.True(t, m.SupportsCore("1.3.0"))
	require.False(t, m.SupportsCore("1.1.9"))
	require.True(t, (&Manifest{}).SupportsCore("0.1.0"))
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("Plugins")
	require.NoError(t, err)
	require.Equal(t, KindPlugin, kind)

	kind, err = ParseKind("theme")
	require.NoError(t, err)
	require.Equal(t, KindTheme, kind)
	require.Equal(t, "theme.json", kind.ManifestFile())

	_, err = ParseKind("module")
	require.ErrorIs(t, err, ErrUnknownKind)
}
