package extensions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultDiscoveryMaxAge bounds how long a discovery result is reused. It lets
// a server notice extensions installed by exiloncmsctl without a restart.
const DefaultDiscoveryMaxAge = 30 * time.Second

// ErrExtensionNotFound is returned when no extension directory matches an id.
var ErrExtensionNotFound = errors.New("extensions: extension not found")

// ErrIDMismatch flags a manifest whose id differs from its directory name.
var ErrIDMismatch = errors.New("extensions: manifest id does not match directory name")

// Info describes an extension found on disk. Error is set when the directory
// exists but its manifest could not be loaded; such entries are listed, not dropped.
type Info struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Path     string    `json:"path"`
	Manifest *Manifest `json:"manifest,omitempty"`
	Error    error     `json:"-"`
}

// Valid reports whether the extension loaded cleanly.
func (i *Info) Valid() bool {
	return i != nil && i.Error == nil && i.Manifest != nil
}

// ErrorMessage returns the load error as text for API responses.
func (i *Info) ErrorMessage() string {
	if i == nil || i.Error == nil {
		return ""
	}
	return i.Error.Error()
}

// Registry discovers plugins and themes under their root directories.
// Discovery results are cached until Invalidate is called or they are older
// than the registry's max age.
type Registry struct {
	roots  map[Kind]string
	maxAge time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	snapshot map[Kind]discovery
}

type discovery struct {
	infos []*Info
	at    time.Time
}

// NewRegistry builds a registry rooted at the given plugin and theme directories.
func NewRegistry(pluginsPath, themesPath string) *Registry {
	return &Registry{
		roots: map[Kind]string{
			KindPlugin: filepath.Clean(pluginsPath),
			KindTheme:  filepath.Clean(themesPath),
		},
		maxAge:   DefaultDiscoveryMaxAge,
		now:      time.Now,
		snapshot: make(map[Kind]discovery),
	}
}

// SetMaxAge changes how long discovery results are reused. Zero or less
// disables reuse.
func (r *Registry) SetMaxAge(d time.Duration) {
	r.mu.Lock()
	r.maxAge = d
	r.mu.Unlock()
}

// Root returns the directory holding extensions of the kind.
func (r *Registry) Root(kind Kind) string {
	return r.roots[kind]
}

// Dir returns the directory an extension with id would live in.
func (r *Registry) Dir(kind Kind, id string) (string, error) {
	root, ok := r.roots[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." || strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(root, id), nil
}

// Discover lists every extension of the kind sorted by id.
func (r *Registry) Discover(kind Kind) ([]*Info, error) {
	r.mu.RLock()
	cached, ok := r.snapshot[kind]
	fresh := ok && r.now().Sub(cached.at) < r.maxAge
	r.mu.RUnlock()
	if fresh {
		return cloneInfos(cached.infos), nil
	}
	return r.Refresh(kind)
}

// Refresh rescans the root directory for the kind.
func (r *Registry) Refresh(kind Kind) ([]*Info, error) {
	root, ok := r.roots[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	entries, err := os.ReadDir(root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("extensions: read %s: %w", root, err)
	}

	infos := make([]*Info, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		infos = append(infos, inspect(kind, entry.Name(), filepath.Join(root, entry.Name())))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	r.mu.Lock()
	r.snapshot[kind] = discovery{infos: infos, at: r.now()}
	r.mu.Unlock()

	return cloneInfos(infos), nil
}

// Get returns a single extension. Extensions with an invalid manifest are
// returned together with their load error.
func (r *Registry) Get(kind Kind, id string) (*Info, error) {
	infos, err := r.Discover(kind)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.ID == id {
			if info.Error != nil {
				return info, info.Error
			}
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s", ErrExtensionNotFound, kind, id)
}

// Invalidate drops cached discovery results for the given kinds, or all kinds when none are given.
func (r *Registry) Invalidate(kinds ...Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(kinds) == 0 {
		r.snapshot = make(map[Kind]discovery)
		return
	}
	for _, kind := range kinds {
		delete(r.snapshot, kind)
	}
}

func inspect(kind Kind, name, dir string) *Info {
	info := &Info{ID: name, Kind: kind, Path: dir}

	manifest, err := LoadManifest(dir, kind)
	if err != nil {
		info.Error = err
		return info
	}
	info.Manifest = manifest
	if manifest.ID != name {
		info.Error = fmt.Errorf("%w: %q in %q", ErrIDMismatch, manifest.ID, name)
	}
	return info
}

func cloneInfos(in []*Info) []*Info {
	out := make([]*Info, len(in))
	for i, info := range in {
		cp := *info
		if info.Manifest != nil {
			m := *info.Manifest
			m.AdminSections = append([]AdminSection(nil), info.Manifest.AdminSections...)
			m.Permissions = append([]PermissionDefinition(nil), info.Manifest.Permissions...)
			cp.Manifest = &m
		}
		out[i] = &cp
	}
	return out
}
