package extensions

import "sort"

// NavItem is an entry of the admin sidebar.
type NavItem struct {
	Label      string `json:"label"`
	Route      string `json:"route"`
	Icon       string `json:"icon,omitempty"`
	Position   int    `json:"position"`
	Permission string `json:"permission,omitempty"`
	Plugin     string `json:"plugin,omitempty"`
}

// SectionsFromManifest converts a manifest's admin sections into nav items tagged with the plugin id.
func SectionsFromManifest(m *Manifest) []NavItem {
	if m == nil || len(m.AdminSections) == 0 {
		return nil
	}
	items := make([]NavItem, 0, len(m.AdminSections))
	for _, section := range m.AdminSections {
		items = append(items, NavItem{
			Label:      section.Label,
			Route:      section.Route,
			Icon:       section.Icon,
			Position:   section.Position,
			Permission: section.Permission,
			Plugin:     m.ID,
		})
	}
	return items
}

// MergeNavigation concatenates base with each group of contributed items and
// sorts the result by Position. Items with equal positions keep their input
// order: base entries first, then contributions in the order given.
func MergeNavigation(base []NavItem, contributions ...[]NavItem) []NavItem {
	size := len(base)
	for _, group := range contributions {
		size += len(group)
	}

	merged := make([]NavItem, 0, size)
	merged = append(merged, base...)
	for _, group := range contributions {
		merged = append(merged, group...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Position < merged[j].Position
	})
	return merged
}
