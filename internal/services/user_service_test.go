package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/internal/database/testutil"
	"github.com/exiloncms/exiloncms/internal/models"
	"github.com/exiloncms/exiloncms/pkg/crypto"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
)

func newUserService(t *testing.T) (*UserService, *ActionLogService) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	actions, err := NewActionLogService(db)
	require.NoError(t, err)
	svc, err := NewUserService(db, actions)
	require.NoError(t, err)
	return svc, actions
}

func roleIDs(user *models.User) []string {
	ids := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		ids = append(ids, role.ID)
	}
	return ids
}

func TestUserServiceCreateAssignsDefaultRoles(t *testing.T) {
	svc, actions := newUserService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, CreateUserInput{Username: "Admin", Email: "Admin@Example.com", Password: "secret123", IsRoot: true})
	require.NoError(t, err)
	require.Equal(t, "admin@example.com", root.Email)
	require.NotEqual(t, "secret123", root.Password)

	loaded, err := svc.GetByID(ctx, root.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{database.RoleAdmin, database.RoleMember}, roleIDs(loaded))

	member, err := svc.Create(ctx, CreateUserInput{Username: "steve", Email: "steve@example.com", Password: "secret123"})
	require.NoError(t, err)
	loaded, err = svc.GetByID(ctx, member.ID)
	require.NoError(t, err)
	require.Equal(t, []string{database.RoleMember}, roleIDs(loaded))

	_, err = svc.Create(ctx, CreateUserInput{Username: "steve", Email: "other@example.com", Password: "secret123"})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = svc.Create(ctx, CreateUserInput{Username: "", Email: "x@example.com", Password: "secret123"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	logs, total, err := actions.List(ctx, ActionLogListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Equal(t, ActionUserCreate, logs[0].Action)
}

func TestUserServiceAuthenticate(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	user, err := svc.Create(ctx, CreateUserInput{Username: "Alex", Email: "alex@example.com", Password: "hunter22"})
	require.NoError(t, err)

	byName, err := svc.Authenticate(ctx, "alex", "hunter22", "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, user.ID, byName.ID)
	require.NotNil(t, byName.LastLoginAt)
	require.Equal(t, "10.0.0.1", byName.LastLoginIP)

	byEmail, err := svc.Authenticate(ctx, "ALEX@example.com", "hunter22", "")
	require.NoError(t, err)
	require.Equal(t, user.ID, byEmail.ID)

	_, err = svc.Authenticate(ctx, "alex", "wrong", "")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "hunter22", "")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	inactive := false
	_, err = svc.Update(ctx, user.ID, UpdateUserInput{IsActive: &inactive})
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "alex", "hunter22", "")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUserServiceRootIsProtected(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, CreateUserInput{Username: "root", Email: "root@example.com", Password: "secret123", IsRoot: true})
	require.NoError(t, err)

	inactive := false
	_, err = svc.Update(ctx, root.ID, UpdateUserInput{IsActive: &inactive})
	require.ErrorIs(t, err, ErrRootUserImmutable)
	require.ErrorIs(t, svc.Delete(ctx, root.ID), ErrRootUserImmutable)

	other, err := svc.Create(ctx, CreateUserInput{Username: "temp", Email: "temp@example.com", Password: "secret123"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, other.ID))

	_, err = svc.GetByID(ctx, other.ID)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserServiceListAndRoles(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "bravo", "charlie"} {
		_, err := svc.Create(ctx, CreateUserInput{Username: name, Email: name + "@example.com", Password: "secret123"})
		require.NoError(t, err)
	}

	users, total, err := svc.List(ctx, ListUsersOptions{Filters: UserFilters{Query: "BRA"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "bravo", users[0].Username)

	updated, err := svc.SetRoles(ctx, users[0].ID, []string{database.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, []string{database.RoleAdmin}, roleIDs(updated))

	_, err = svc.SetRoles(ctx, users[0].ID, []string{"ghost"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	require.NoError(t, svc.ChangePassword(ctx, users[0].ID, "changed123"))
	_, err = svc.Authenticate(ctx, "bravo", "changed123", "")
	require.NoError(t, err)
	require.ErrorIs(t, svc.ChangePassword(ctx, "missing", "changed123"), ErrUserNotFound)
}

func TestUserServiceUpgradesWeakHashesOnLogin(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	previous := crypto.PasswordCost
	t.Cleanup(func() { crypto.PasswordCost = previous })
	crypto.PasswordCost = bcrypt.MinCost

	created, err := svc.Create(ctx, CreateUserInput{Username: "notch", Email: "notch@example.com", Password: "minecraft1"})
	require.NoError(t, err)

	crypto.PasswordCost = bcrypt.MinCost + 1
	_, err = svc.Authenticate(ctx, "notch", "minecraft1", "")
	require.NoError(t, err)

	var stored models.User
	require.NoError(t, svc.db.First(&stored, "id = ?", created.ID).Error)
	cost, err := bcrypt.Cost([]byte(stored.Password))
	require.NoError(t, err)
	require.Equal(t, bcrypt.MinCost+1, cost)
	require.True(t, crypto.VerifyPassword(stored.Password, "minecraft1"))
}

func TestUserServiceRejectsOverlongPassword(t *testing.T) {
	svc, _ := newUserService(t)

	_, err := svc.Create(context.Background(), CreateUserInput{Username: "herobrine", Email: "h@example.com", Password: strings.Repeat("x", 80)})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}
