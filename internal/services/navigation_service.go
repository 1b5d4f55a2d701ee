package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/exiloncms/exiloncms/internal/extensions"
	"github.com/exiloncms/exiloncms/internal/permissions"
)

// EnabledManifestSource lists manifests of enabled plugins.
type EnabledManifestSource interface {
	EnabledManifests(ctx context.Context) ([]*extensions.Manifest, error)
}

// DefaultAdminNavigation is the built-in admin sidebar.
func DefaultAdminNavigation() []extensions.NavItem {
	return []extensions.NavItem{
		{Label: "Dashboard", Route: "/admin", Icon: "gauge", Position: 0, Permission: permissions.AdminAccess},
		{Label: "Settings", Route: "/admin/settings", Icon: "settings", Position: 10, Permission: permissions.AdminSettings},
		{Label: "Navigation", Route: "/admin/navbar", Icon: "menu", Position: 20, Permission: permissions.AdminNavbar},
		{Label: "Users", Route: "/admin/users", Icon: "users", Position: 30, Permission: permissions.AdminUsers},
		{Label: "Posts", Route: "/admin/posts", Icon: "newspaper", Position: 40, Permission: permissions.AdminPosts},
		{Label: "Pages", Route: "/admin/pages", Icon: "file-text", Position: 50, Permission: permissions.AdminPages},
		{Label: "Servers", Route: "/admin/servers", Icon: "server", Position: 60, Permission: permissions.AdminServers},
		{Label: "Translations", Route: "/admin/translations", Icon: "languages", Position: 70, Permission: permissions.AdminTranslations},
		{Label: "Plugins", Route: "/admin/plugins", Icon: "puzzle", Position: 80, Permission: permissions.AdminPlugins},
		{Label: "Themes", Route: "/admin/themes", Icon: "palette", Position: 90, Permission: permissions.AdminThemes},
		{Label: "Updates", Route: "/admin/updates", Icon: "download", Position: 100, Permission: permissions.AdminUpdates},
		{Label: "Backups", Route: "/admin/backups", Icon: "database", Position: 110, Permission: permissions.AdminBackups},
		{Label: "Logs", Route: "/admin/logs", Icon: "scroll-text", Position: 120, Permission: permissions.AdminLogs},
	}
}

// NavigationService builds the admin sidebar from the built-in entries and
// the sections declared by enabled plugins. The merged list is kept in
// memory until Invalidate is called or it is older than navigationMaxAge, so
// plugins toggled by exiloncmsctl show up without a restart.
type NavigationService struct {
	source  EnabledManifestSource
	checker *permissions.Checker
	base    []extensions.NavItem
	maxAge  time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	cached   []extensions.NavItem
	cachedAt time.Time
}

const navigationMaxAge = 30 * time.Second

// NewNavigationService constructs a NavigationService. checker may be nil,
// in which case ForUser returns the full list.
func NewNavigationService(source EnabledManifestSource, checker *permissions.Checker) (*NavigationService, error) {
	if source == nil {
		return nil, errors.New("navigation service: manifest source is required")
	}
	return &NavigationService{
		source:  source,
		checker: checker,
		base:    DefaultAdminNavigation(),
		maxAge:  navigationMaxAge,
		now:     time.Now,
	}, nil
}

// AdminSections returns the merged admin navigation.
func (s *NavigationService) AdminSections(ctx context.Context) ([]extensions.NavItem, error) {
	ctx = ensureContext(ctx)

	s.mu.RLock()
	cached := s.cached
	fresh := cached != nil && s.now().Sub(s.cachedAt) < s.maxAge
	s.mu.RUnlock()
	if fresh {
		return cloneNav(cached), nil
	}

	manifests, err := s.source.EnabledManifests(ctx)
	if err != nil {
		return nil, fmt.Errorf("navigation service: load plugins: %w", err)
	}
	groups := make([][]extensions.NavItem, 0, len(manifests))
	for _, manifest := range manifests {
		groups = append(groups, extensions.SectionsFromManifest(manifest))
	}
	merged := extensions.MergeNavigation(s.base, groups...)

	s.mu.Lock()
	s.cached = merged
	s.cachedAt = s.now()
	s.mu.Unlock()
	return cloneNav(merged), nil
}

// ForUser filters AdminSections down to entries the user may open.
func (s *NavigationService) ForUser(ctx context.Context, userID string) ([]extensions.NavItem, error) {
	items, err := s.AdminSections(ctx)
	if err != nil {
		return nil, err
	}
	if s.checker == nil {
		return items, nil
	}

	granted, err := s.checker.GetUserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("navigation service: load permissions: %w", err)
	}
	set := make(map[string]struct{}, len(granted))
	for _, id := range granted {
		set[id] = struct{}{}
	}

	out := items[:0]
	for _, item := range items {
		if item.Permission == "" {
			out = append(out, item)
			continue
		}
		if _, ok := set[item.Permission]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// Invalidate drops the merged list.
func (s *NavigationService) Invalidate(context.Context) {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func cloneNav(items []extensions.NavItem) []extensions.NavItem {
	out := make([]extensions.NavItem, len(items))
	copy(out, items)
	return out
}
