package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/internal/database/testutil"
	"github.com/exiloncms/exiloncms/internal/permissions"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
)

func TestRoleServiceLifecycle(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	svc, err := NewRoleService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	power := 50
	role, err := svc.Create(ctx, RoleInput{Name: "Moderator", Color: "#00ff00", Power: &power})
	require.NoError(t, err)
	require.Equal(t, 50, role.Power)

	roles, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)
	require.Equal(t, database.RoleAdmin, roles[0].ID)
	require.Equal(t, role.ID, roles[1].ID)

	updated, err := svc.Update(ctx, role.ID, RoleInput{Name: "Mod", Description: "Keeps order"})
	require.NoError(t, err)
	require.Equal(t, "Mod", updated.Name)
	require.Equal(t, "Keeps order", updated.Description)

	require.NoError(t, svc.Delete(ctx, role.ID))
	_, err = svc.Get(ctx, role.ID)
	require.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRoleServiceSystemRoles(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	svc, err := NewRoleService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.ErrorIs(t, svc.Delete(ctx, database.RoleMember), ErrSystemRoleImmutable)
	_, err = svc.Update(ctx, database.RoleMember, RoleInput{Name: "Guests"})
	require.ErrorIs(t, err, ErrSystemRoleImmutable)

	_, err = svc.Update(ctx, database.RoleMember, RoleInput{Color: "#123456"})
	require.NoError(t, err)

	_, err = svc.SetPermissions(ctx, database.RoleAdmin, nil)
	require.ErrorIs(t, err, ErrSystemRoleImmutable)
}

func TestRoleServiceSetPermissionsAddsDependencies(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	svc, err := NewRoleService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	applied, err := svc.SetPermissions(ctx, database.RoleMember, []string{permissions.AdminBackups})
	require.NoError(t, err)
	require.Equal(t, []string{permissions.AdminAccess, permissions.AdminBackups, permissions.AdminSettings}, applied)

	role, err := svc.Get(ctx, database.RoleMember)
	require.NoError(t, err)
	require.Len(t, role.Permissions, 3)

	_, err = svc.SetPermissions(ctx, database.RoleMember, []string{"does.not.exist"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	applied, err = svc.SetPermissions(ctx, database.RoleMember, nil)
	require.NoError(t, err)
	require.Empty(t, applied)

	role, err = svc.Get(ctx, database.RoleMember)
	require.NoError(t, err)
	require.Empty(t, role.Permissions)

	_, err = svc.SetPermissions(ctx, "missing", []string{permissions.AdminAccess})
	require.ErrorIs(t, err, ErrRoleNotFound)
}
