package extensions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/exiloncms/exiloncms/pkg/validator"
)

// Kind distinguishes plugins from themes.
type Kind string

const (
	KindPlugin Kind = "plugin"
	KindTheme  Kind = "theme"
)

// ParseKind converts user input into a Kind.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindPlugin, "plugins":
		return KindPlugin, nil
	case KindTheme, "themes":
		return KindTheme, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, value)
}

// ManifestFile returns the manifest file name for the kind.
func (k Kind) ManifestFile() string {
	if k == KindTheme {
		return "theme.json"
	}
	return "plugin.json"
}

// Manifest describes a plugin or theme.
type Manifest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`

	Authors []string `json:"authors,omitempty"`

	// UpdateURL holds the marketplace resource id used for update checks.
	UpdateURL string `json:"update_url,omitempty"`
	// GitHub is an "owner/repo" reference checked against releases.
	GitHub string `json:"github,omitempty"`

	Requires map[string]string `json:"requires,omitempty"`

	AdminSections []AdminSection         `json:"admin_sections,omitempty"`
	Permissions   []PermissionDefinition `json:"permissions,omitempty"`

	// Config holds theme configuration defaults.
	Config json.RawMessage `json:"config,omitempty"`

	Kind Kind   `json:"-"`
	Path string `json:"-"`
}

// AdminSection is a navigation entry contributed to the admin sidebar.
type AdminSection struct {
	Label      string `json:"label"`
	Route      string `json:"route"`
	Icon       string `json:"icon,omitempty"`
	Position   int    `json:"position"`
	Permission string `json:"permission,omitempty"`
}

// PermissionDefinition is a permission declared by a plugin.
type PermissionDefinition struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// rawManifest accepts the identifier under any of its historical names and
// authors as either a string or a list.
type rawManifest struct {
	Manifest
	PluginID string          `json:"plugin_id"`
	ThemeID  string          `json:"theme_id"`
	Author   json.RawMessage `json:"author"`
}

// Manifest validation errors.
var (
	ErrUnknownKind       = errors.New("extensions: unknown extension kind")
	ErrManifestNotFound  = errors.New("extensions: manifest not found")
	ErrInvalidManifest   = errors.New("extensions: invalid manifest")
	ErrMissingID         = errors.New("extensions: manifest id is required")
	ErrInvalidID         = errors.New("extensions: manifest id must be a lowercase slug")
	ErrMissingName       = errors.New("extensions: manifest name is required")
	ErrInvalidSection    = errors.New("extensions: admin section requires label and route")
	ErrInvalidPermission = errors.New("extensions: declared permission is invalid")
)

// LoadManifest reads and validates the manifest stored in dir.
func LoadManifest(dir string, kind Kind) (*Manifest, error) {
	path := filepath.Join(dir, kind.ManifestFile())
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, kind.ManifestFile())
		}
		return nil, fmt.Errorf("extensions: read manifest: %w", err)
	}

	m, err := ParseManifest(data, kind)
	if err != nil {
		return nil, err
	}
	m.Path = dir
	return m, nil
}

// ParseManifest decodes manifest bytes, applies defaults and validates the result.
func ParseManifest(data []byte, kind Kind) (*Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	m := raw.Manifest
	m.Kind = kind
	if m.ID == "" {
		if kind == KindTheme && raw.ThemeID != "" {
			m.ID = raw.ThemeID
		} else if raw.PluginID != "" {
			m.ID = raw.PluginID
		} else {
			m.ID = raw.ThemeID
		}
	}
	m.ID = strings.TrimSpace(m.ID)
	m.Authors = append(m.Authors, decodeAuthors(raw.Author)...)

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func decodeAuthors(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			return []string{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

func (m *Manifest) applyDefaults() {
	if strings.TrimSpace(m.Version) == "" {
		m.Version = "1.0.0"
	}
	if strings.TrimSpace(m.Name) == "" {
		m.Name = m.ID
	}
}

// Validate checks the manifest invariants.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return ErrMissingID
	}
	if !validator.IsSlug(m.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, m.ID)
	}
	if strings.TrimSpace(m.Name) == "" {
		return ErrMissingName
	}
	for i, section := range m.AdminSections {
		if strings.TrimSpace(section.Label) == "" || strings.TrimSpace(section.Route) == "" {
			return fmt.Errorf("%w: entry %d", ErrInvalidSection, i)
		}
	}
	for _, perm := range m.Permissions {
		if strings.TrimSpace(perm.ID) == "" || strings.ContainsAny(perm.ID, " \t") {
			return fmt.Errorf("%w: %q", ErrInvalidPermission, perm.ID)
		}
	}
	return nil
}

// MinCoreVersion returns the minimum CMS version the extension declares.
func (m *Manifest) MinCoreVersion() string {
	if m == nil {
		return ""
	}
	for _, key := range []string{"exiloncms", "cms", "core"} {
		if v := strings.TrimSpace(m.Requires[key]); v != "" {
			return strings.TrimLeft(v, ">=^~ ")
		}
	}
	return ""
}

// SupportsCore reports whether the running CMS version satisfies the manifest requirement.
func (m *Manifest) SupportsCore(coreVersion string) bool {
	required := m.MinCoreVersion()
	if required == "" || coreVersion == "" {
		return true
	}
	return CompareVersions(coreVersion, required) >= 0
}
