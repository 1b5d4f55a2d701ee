package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/internal/database/testutil"
	"github.com/exiloncms/exiloncms/internal/models"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
)

func newBackupService(t *testing.T) (*BackupService, string) {
	t.Helper()
	root := t.TempDir()
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData(), testutil.WithFile(filepath.Join(root, "site.sqlite")))
	dir := filepath.Join(root, "backups")
	svc, err := NewBackupService(db, dir, nil)
	require.NoError(t, err)
	require.True(t, svc.Supported())
	return svc, dir
}

func TestBackupServiceCreateListPrune(t *testing.T) {
	svc, dir := newBackupService(t)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	first, err := svc.Create(ctx)
	require.NoError(t, err)
	require.Equal(t, "exiloncms-20260301-100000.sqlite", first.Name)
	require.Positive(t, first.Size)

	_, err = svc.Create(ctx)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	clock = clock.Add(time.Hour)
	second, err := svc.Create(ctx)
	require.NoError(t, err)
	clock = clock.Add(time.Hour)
	third, err := svc.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	files, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Equal(t, third.Name, files[0].Name)

	removed, err := svc.Prune(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []string{first.Name}, removed)

	path, err := svc.Path(second.Name)
	require.NoError(t, err)
	require.FileExists(t, path)

	_, err = svc.Path("../site.sqlite")
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
	_, err = svc.Path(first.Name)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, second.Name))
	files, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)

	require.NoError(t, svc.Optimize(ctx))
}

func TestBackupServiceExportImportRoundTrip(t *testing.T) {
	svc, _ := newBackupService(t)
	ctx := context.Background()
	db := svc.db

	require.NoError(t, database.UpsertSetting(ctx, db, database.SettingSiteName, "It's 'quoted'; really"))

	var dump bytes.Buffer
	require.NoError(t, svc.Export(ctx, &dump))
	require.Contains(t, dump.String(), "CREATE TABLE")
	require.Contains(t, dump.String(), "It''s ''quoted''; really")

	require.NoError(t, database.UpsertSetting(ctx, db, database.SettingSiteName, "changed"))
	require.NoError(t, database.UpsertSetting(ctx, db, "extra.key", "added"))

	require.NoError(t, svc.Import(ctx, strings.NewReader(dump.String())))

	var name models.Setting
	require.NoError(t, db.Where(&models.Setting{Key: database.SettingSiteName}).Take(&name).Error)
	require.Equal(t, "It's 'quoted'; really", name.Value)

	var count int64
	require.NoError(t, db.Model(&models.Setting{}).Where(&models.Setting{Key: "extra.key"}).Count(&count).Error)
	require.Zero(t, count)

	var roles int64
	require.NoError(t, db.Model(&models.Role{}).Count(&roles).Error)
	require.EqualValues(t, 2, roles)
}

func TestBackupServiceImportRollsBack(t *testing.T) {
	svc, _ := newBackupService(t)
	ctx := context.Background()

	script := `INSERT INTO settings ("key", "value") VALUES ('rollback.me', 'x');
INSERT INTO missing_table VALUES (1);`
	err := svc.Import(ctx, strings.NewReader(script))
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	var count int64
	require.NoError(t, svc.db.Model(&models.Setting{}).Where(&models.Setting{Key: "rollback.me"}).Count(&count).Error)
	require.Zero(t, count)

	require.ErrorIs(t, svc.Import(ctx, strings.NewReader("-- nothing")), apperrors.ErrBadRequest)
}
