package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/internal/database/testutil"
	"github.com/exiloncms/exiloncms/internal/models"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
)

func newInstallService(t *testing.T) (*InstallService, *SettingsService) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	settings, err := NewSettingsService(db, cache.NewDatabaseStore(db))
	require.NoError(t, err)
	users, err := NewUserService(db, nil)
	require.NoError(t, err)
	svc, err := NewInstallService(db, settings, users, nil, "1.2.0")
	require.NoError(t, err)
	return svc, settings
}

func validInstallInput() InstallInput {
	return InstallInput{
		SiteName: "Craft Realm",
		SiteURL:  "https://craft.example.com/",
		Locale:   "fr_FR",
		Username: "owner",
		Email:    "owner@example.com",
		Password: "secret123",
	}
}

func TestInstallServiceInstallsOnce(t *testing.T) {
	svc, settings := newInstallService(t)
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	// Warm the settings cache so a stale read would show up.
	status, err := svc.Status(ctx)
	require.NoError(t, err)
	require.False(t, status.Installed)
	require.Equal(t, "1.2.0", status.Version)

	admin, err := svc.Install(ctx, validInstallInput())
	require.NoError(t, err)
	require.True(t, admin.IsRoot)

	status, err = svc.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.Installed)
	require.NotNil(t, status.InstalledAt)
	require.Equal(t, 2026, status.InstalledAt.Year())

	url, _, err := settings.Get(ctx, database.SettingSiteURL)
	require.NoError(t, err)
	require.Equal(t, "https://craft.example.com", url)
	locale, _, err := settings.Get(ctx, database.SettingSiteLocale)
	require.NoError(t, err)
	require.Equal(t, "fr-FR", locale)

	_, err = svc.Install(ctx, validInstallInput())
	require.ErrorIs(t, err, apperrors.ErrAlreadyInstalled)
}

func TestInstallServiceRollsBackOnInvalidUser(t *testing.T) {
	svc, _ := newInstallService(t)
	ctx := context.Background()

	input := validInstallInput()
	input.Password = ""
	_, err := svc.Install(ctx, input)
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	require.False(t, status.Installed)

	var users int64
	require.NoError(t, svc.db.Model(&models.User{}).Count(&users).Error)
	require.Zero(t, users)

	input = validInstallInput()
	input.SiteURL = "craft.example.com"
	_, err = svc.Install(ctx, input)
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestInstallServiceConcurrentInstalls(t *testing.T) {
	svc, _ := newInstallService(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Install(ctx, validInstallInput()); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, succeeded)
}
