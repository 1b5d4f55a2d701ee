package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/models"
)

func TestGetAndUpsertSetting(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.Setting{}))
	ctx := context.Background()

	value, err := GetSetting(ctx, db, "missing")
	require.NoError(t, err)
	require.Equal(t, "", value)

	require.NoError(t, UpsertSetting(ctx, db, "sample", "value1"))
	value, err = GetSetting(ctx, db, "sample")
	require.NoError(t, err)
	require.Equal(t, "value1", value)

	require.NoError(t, UpsertSetting(ctx, db, "sample", "value2"))
	value, err = GetSetting(ctx, db, "sample")
	require.NoError(t, err)
	require.Equal(t, "value2", value)
}

func TestGetSettingWithoutTable(t *testing.T) {
	db := openTestDB(t)
	value, err := GetSetting(context.Background(), db, "site.name")
	require.NoError(t, err)
	require.Empty(t, value)
}

func TestUpsertSettingRequiresKey(t *testing.T) {
	db := openTestDB(t)
	require.Error(t, UpsertSetting(context.Background(), db, "  ", "value"))
}
