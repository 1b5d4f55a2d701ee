package permissions

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/exiloncms/exiloncms/internal/models"
)

func TestCheckerRootBypassesAllChecks(t *testing.T) {
	db := setupPermissionTestDB(t)

	root := &models.User{Username: "root", Email: "root@example.com", Password: "x", IsRoot: true, IsActive: true}
	require.NoError(t, db.Create(root).Error)

	checker, err := NewChecker(db)
	require.NoError(t, err)

	ok, err := checker.Check(context.Background(), root.ID, "non.existent.permission")
	require.NoError(t, err)
	require.True(t, ok)

	perms, err := checker.GetUserPermissions(context.Background(), root.ID)
	require.NoError(t, err)
	require.Contains(t, perms, AdminPlugins)
}

func TestCheckerRequiresDependencies(t *testing.T) {
	db := setupPermissionTestDB(t)
	checker, err := NewChecker(db)
	require.NoError(t, err)

	partial := createUserWithPermissions(t, db, "partial", AdminPlugins)
	ok, err := checker.Check(context.Background(), partial.ID, AdminPlugins)
	require.NoError(t, err)
	require.False(t, ok, "admin.plugins without admin.access must be denied")

	full := createUserWithPermissions(t, db, "full", AdminAccess, AdminPlugins)
	ok, err = checker.Check(context.Background(), full.ID, AdminPlugins)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = checker.Check(context.Background(), full.ID, AdminThemes)
	require.NoError(t, err)
	require.False(t, ok)

	perms, err := checker.GetUserPermissions(context.Background(), full.ID)
	require.NoError(t, err)
	require.Equal(t, []string{AdminAccess, AdminPlugins}, perms)
}

func TestCheckerInactiveUserDenied(t *testing.T) {
	db := setupPermissionTestDB(t)
	checker, err := NewChecker(db)
	require.NoError(t, err)

	user := createUserWithPermissions(t, db, "inactive", AdminAccess)
	require.NoError(t, db.Model(user).Update("is_active", false).Error)

	ok, err := checker.Check(context.Background(), user.ID, AdminAccess)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckerErrors(t *testing.T) {
	_, err := NewChecker(nil)
	require.Error(t, err)

	db := setupPermissionTestDB(t)
	checker, err := NewChecker(db)
	require.NoError(t, err)

	_, err = checker.Check(context.Background(), "", AdminAccess)
	require.Error(t, err)
	_, err = checker.Check(context.Background(), "missing", AdminAccess)
	require.Error(t, err)
}

func TestSyncPersistsRegistry(t *testing.T) {
	db := setupPermissionTestDB(t)

	var count int64
	require.NoError(t, db.Model(&models.Permission{}).Count(&count).Error)
	require.EqualValues(t, len(List()), count)

	var perm models.Permission
	require.NoError(t, db.First(&perm, "id = ?", AdminBackups).Error)
	require.Equal(t, `["admin.settings"]`, perm.DependsOn)
}

func setupPermissionTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:perm-%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Role{}, &models.Permission{}))
	require.NoError(t, Sync(context.Background(), db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func createUserWithPermissions(t *testing.T, db *gorm.DB, name string, perms ...string) *models.User {
	t.Helper()

	var granted []models.Permission
	require.NoError(t, db.Where("id IN ?", perms).Find(&granted).Error)

	role := &models.Role{Name: "role-" + name, Permissions: granted}
	require.NoError(t, db.Create(role).Error)

	user := &models.User{
		Username: name,
		Email:    name + "@example.com",
		Password: "x",
		IsActive: true,
		Roles:    []models.Role{*role},
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
