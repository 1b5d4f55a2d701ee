package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Permission describes a permission known to the admin panel. Plugins may
// register their own permissions at enable time.
type Permission struct {
	ID          string
	Module      string
	DependsOn   []string
	Description string
}

type permissionRegistry struct {
	mu          sync.RWMutex
	permissions map[string]*Permission
}

var globalRegistry = &permissionRegistry{
	permissions: make(map[string]*Permission),
}

var (
	errNilPermission  = errors.New("permission: nil definition")
	errEmptyID        = errors.New("permission: id is required")
	errDuplicateID    = errors.New("permission: already registered")
	errSelfDependency = errors.New("permission: cannot depend on itself")
)

// Register adds a permission definition to the global registry.
func Register(perm *Permission) error {
	if perm == nil {
		return errNilPermission
	}

	id := strings.TrimSpace(perm.ID)
	if id == "" {
		return errEmptyID
	}

	def := clonePermission(perm)
	def.ID = id
	def.Module = strings.TrimSpace(def.Module)

	deps, err := normaliseDependencies(def.DependsOn, id)
	if err != nil {
		return err
	}
	def.DependsOn = deps

	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if _, exists := globalRegistry.permissions[id]; exists {
		return fmt.Errorf("%w: %s", errDuplicateID, id)
	}
	globalRegistry.permissions[id] = def
	return nil
}

// RegisterOrReplace upserts a definition. Used for plugin-declared permissions,
// which are re-read every time a plugin is enabled.
func RegisterOrReplace(perm *Permission) error {
	if perm == nil {
		return errNilPermission
	}
	unregister(strings.TrimSpace(perm.ID))
	return Register(perm)
}

// Get returns a copy of the permission definition when registered.
func Get(id string) (*Permission, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	perm, ok := globalRegistry.permissions[id]
	if !ok {
		return nil, false
	}
	return clonePermission(perm), true
}

// GetAll returns a copy of all registered permissions keyed by ID.
func GetAll() map[string]*Permission {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	out := make(map[string]*Permission, len(globalRegistry.permissions))
	for id, perm := range globalRegistry.permissions {
		out[id] = clonePermission(perm)
	}
	return out
}

// List returns all permissions ordered by module then id.
func List() []*Permission {
	all := GetAll()
	out := make([]*Permission, 0, len(all))
	for _, perm := range all {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ValidateDependencies ensures that all dependencies reference known permissions.
func ValidateDependencies() error {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	for _, perm := range globalRegistry.permissions {
		for _, dep := range perm.DependsOn {
			if _, ok := globalRegistry.permissions[dep]; !ok {
				return fmt.Errorf("permission: %s depends on unknown permission %s", perm.ID, dep)
			}
		}
	}
	return nil
}

// PluginModule is the registry module holding the permissions a plugin declares.
func PluginModule(pluginID string) string {
	return "plugin:" + pluginID
}

// UnregisterModule removes every permission of module and returns their IDs.
func UnregisterModule(module string) []string {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	var ids []string
	for id, perm := range globalRegistry.permissions {
		if perm.Module == module {
			ids = append(ids, id)
			delete(globalRegistry.permissions, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func unregister(id string) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	delete(globalRegistry.permissions, id)
}

func clonePermission(perm *Permission) *Permission {
	if perm == nil {
		return nil
	}
	cp := *perm
	if len(perm.DependsOn) > 0 {
		cp.DependsOn = append([]string(nil), perm.DependsOn...)
	}
	return &cp
}

func normaliseDependencies(values []string, self string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(values))
	var result []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if value == self {
			return nil, errSelfDependency
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result, nil
}
