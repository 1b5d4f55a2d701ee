package extensions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeNavigationStableForEqualPositions(t *testing.T) {
	base := []NavItem{
		{Label: "Dashboard", Route: "/admin", Position: 0},
		{Label: "Settings", Route: "/admin/settings", Position: 10},
		{Label: "Users", Route: "/admin/users", Position: 20},
	}
	shop := []NavItem{
		{Label: "Shop", Route: "/admin/shop", Position: 10, Plugin: "shop"},
		{Label: "Orders", Route: "/admin/shop/orders", Position: 10, Plugin: "shop"},
	}
	vote := []NavItem{
		{Label: "Vote", Route: "/admin/vote", Position: 5, Plugin: "vote"},
		{Label: "Rewards", Route: "/admin/vote/rewards", Position: 20, Plugin: "vote"},
	}

	merged := MergeNavigation(base, shop, vote)

	labels := make([]string, 0, len(merged))
	for _, item := range merged {
		labels = append(labels, item.Label)
	}
	require.Equal(t, []string{"Dashboard", "Vote", "Settings", "Shop", "Orders", "Users", "Rewards"}, labels)

	require.Equal(t, "Dashboard", base[0].Label, "input is not reordered")
	require.Equal(t, "Settings", base[1].Label)
}

func TestMergeNavigationEmpty(t *testing.T) {
	require.Empty(t, MergeNavigation(nil))
}

func TestSectionsFromManifest(t *testing.T) {
	items := SectionsFromManifest(&Manifest{
		ID: "shop",
		AdminSections: []AdminSection{
			{Label: "Shop", Route: "/admin/shop", Icon: "cart", Position: 40, Permission: "shop.manage"},
		},
	})
	require.Equal(t, []NavItem{{
		Label:      "Shop",
		Route:      "/admin/shop",
		Icon:       "cart",
		Position:   40,
		Permission: "shop.manage",
		Plugin:     "shop",
	}}, items)
	require.Nil(t, SectionsFromManifest(nil))
}
