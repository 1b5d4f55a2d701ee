package permissions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCorePermissionsRegistered(t *testing.T) {
	for _, id := range []string{AdminAccess, AdminPlugins, AdminThemes, AdminUpdates, AdminBackups} {
		_, ok := Get(id)
		require.True(t, ok, id)
	}
	require.NoError(t, ValidateDependencies())
}

func TestRegisterPreventsDuplicates(t *testing.T) {
	id := "test.unique.permission"
	require.NoError(t, Register(&Permission{ID: id, Module: "test"}))
	t.Cleanup(func() { unregister(id) })

	err := Register(&Permission{ID: id, Module: "test"})
	require.True(t, errors.Is(err, errDuplicateID))
}

func TestRegisterValidatesInput(t *testing.T) {
	require.ErrorIs(t, Register(nil), errNilPermission)
	require.ErrorIs(t, Register(&Permission{ID: "  "}), errEmptyID)
	require.ErrorIs(t, Register(&Permission{ID: "self", DependsOn: []string{"self"}}), errSelfDependency)
}

func TestRegisterOrReplaceUpdatesDefinition(t *testing.T) {
	id := "shop.manage"
	require.NoError(t, RegisterOrReplace(&Permission{ID: id, Module: "plugin.shop", Description: "v1"}))
	require.NoError(t, RegisterOrReplace(&Permission{ID: id, Module: "plugin.shop", Description: "v2", DependsOn: []string{AdminAccess}}))
	t.Cleanup(func() { unregister(id) })

	def, ok := Get(id)
	require.True(t, ok)
	require.Equal(t, "v2", def.Description)
	require.Equal(t, []string{AdminAccess}, def.DependsOn)
}

func TestGetReturnsCopy(t *testing.T) {
	def, ok := Get(AdminPlugins)
	require.True(t, ok)
	def.DependsOn[0] = "mutated"

	again, _ := Get(AdminPlugins)
	require.Equal(t, AdminAccess, again.DependsOn[0])
}

func TestResolveDependenciesReturnsTransitiveClosure(t *testing.T) {
	deps, err := ResolveDependencies(AdminBackups)
	require.NoError(t, err)
	require.Equal(t, []string{AdminAccess, AdminSettings}, deps)
}

func TestResolveDependenciesDetectsCycles(t *testing.T) {
	const (
		first  = "perm.cycle.first"
		second = "perm.cycle.second"
	)
	require.NoError(t, Register(&Permission{ID: first, Module: "test", DependsOn: []string{second}}))
	require.NoError(t, Register(&Permission{ID: second, Module: "test", DependsOn: []string{first}}))
	t.Cleanup(func() {
		unregister(first)
		unregister(second)
	})

	_, err := ResolveDependencies(first)
	require.ErrorIs(t, err, ErrCircularDependency)
}

func TestResolveDependenciesUnknown(t *testing.T) {
	_, err := ResolveDependencies("does.not.exist")
	require.ErrorIs(t, err, ErrUnknownPermission)
}
