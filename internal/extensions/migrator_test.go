package extensions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/database/testutil"
	"github.com/exiloncms/exiloncms/internal/models"
)

func pluginWithMigrations(t *testing.T, files map[string]string) *Info {
	t.Helper()
	root := t.TempDir()
	dir := writeExtension(t, root, KindPlugin, "shop", `{"id":"shop"}`)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "migrations"), 0o755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "migrations", name), []byte(body), 0o644))
	}
	return &Info{ID: "shop", Kind: KindPlugin, Path: dir}
}

func TestMigratorRunsPendingInOrder(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	migrator, err := NewMigrator(db)
	require.NoError(t, err)

	plugin := pluginWithMigrations(t, map[string]string{
		"002_seed.sql":  "INSERT INTO shop_items (name) VALUES ('sword'); INSERT INTO shop_items (name) VALUES ('shield');",
		"001_init.sql":  "-- items\nCREATE TABLE shop_items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);",
		"readme.txt":    "ignored",
		"003_index.SQL": "CREATE INDEX idx_shop_items_name ON shop_items (name);",
	})

	pending, err := migrator.Pending(context.Background(), plugin)
	require.NoError(t, err)
	require.Equal(t, []string{"001_init.sql", "002_seed.sql", "003_index.SQL"}, pending)

	applied, err := migrator.Run(context.Background(), plugin)
	require.NoError(t, err)
	require.Equal(t, pending, applied)

	var count int64
	require.NoError(t, db.Table("shop_items").Count(&count).Error)
	require.EqualValues(t, 2, count)

	pending, err = migrator.Pending(context.Background(), plugin)
	require.NoError(t, err)
	require.Empty(t, pending)

	applied, err = migrator.Run(context.Background(), plugin)
	require.NoError(t, err)
	require.Empty(t, applied)
}

func TestMigratorStopsAtFailure(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	migrator, err := NewMigrator(db)
	require.NoError(t, err)

	plugin := pluginWithMigrations(t, map[string]string{
		"001_init.sql":   "CREATE TABLE shop_orders (id INTEGER PRIMARY KEY);",
		"002_broken.sql": "CREATE TABLE shop_refunds (id INTEGER PRIMARY KEY); INSERT INTO missing_table VALUES (1);",
	})

	applied, err := migrator.Run(context.Background(), plugin)
	require.ErrorIs(t, err, ErrMigrationFailed)
	require.Equal(t, []string{"001_init.sql"}, applied)

	require.True(t, db.Migrator().HasTable("shop_orders"))
	require.False(t, db.Migrator().HasTable("shop_refunds"), "failed file is rolled back")

	var records []models.PluginMigration
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)

	require.NoError(t, migrator.Forget(context.Background(), "shop"))
	require.NoError(t, db.Find(&records).Error)
	require.Empty(t, records)
}

func TestMigratorWithoutMigrationsDir(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	migrator, err := NewMigrator(db)
	require.NoError(t, err)

	root := t.TempDir()
	dir := writeExtension(t, root, KindPlugin, "vote", `{"id":"vote"}`)

	pending, err := migrator.Pending(context.Background(), &Info{ID: "vote", Path: dir})
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestSplitSQLStatements(t *testing.T) {
	script := `
-- comment; with semicolon
CREATE TABLE a (v TEXT DEFAULT 'x;y');
/* block; comment */
INSERT INTO a (v) VALUES ('it''s; fine');
;
`
	require.Equal(t, []string{
		"CREATE TABLE a (v TEXT DEFAULT 'x;y')",
		"INSERT INTO a (v) VALUES ('it''s; fine')",
	}, SplitSQLStatements(script))
}
