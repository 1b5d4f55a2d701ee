package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/database/testutil"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
)

func TestCanonicalLocale(t *testing.T) {
	cases := map[string]string{
		"fr":    "fr",
		"pt_BR": "pt-BR",
		"en-us": "en-US",
		" de ":  "de",
	}
	for input, want := range cases {
		got, err := CanonicalLocale(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got)
	}

	_, err := CanonicalLocale("")
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
	_, err = CanonicalLocale("not a locale!")
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestTranslationServiceOverrides(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	svc, err := NewTranslationService(db, cache.NewDatabaseStore(db), nil)
	require.NoError(t, err)
	ctx := context.Background()

	row, err := svc.Set(ctx, TranslationInput{Locale: "fr", Key: "welcome", Value: "Bienvenue"})
	require.NoError(t, err)
	require.Equal(t, "messages", row.Group)

	_, err = svc.Set(ctx, TranslationInput{Locale: "fr", Group: "shop", Key: "buy", Value: "Acheter"})
	require.NoError(t, err)
	_, err = svc.Set(ctx, TranslationInput{Locale: "pt_BR", Key: "welcome", Value: "Bem-vindo"})
	require.NoError(t, err)

	exported, err := svc.Export(ctx, "fr")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"messages.welcome": "Bienvenue", "shop.buy": "Acheter"}, exported)

	updated, err := svc.Set(ctx, TranslationInput{Locale: "FR", Key: "welcome", Value: "Salut"})
	require.NoError(t, err)
	require.Equal(t, row.ID, updated.ID)
	require.Equal(t, "Salut", updated.Value)

	exported, err = svc.Export(ctx, "fr")
	require.NoError(t, err)
	require.Equal(t, "Salut", exported["messages.welcome"])

	locales, err := svc.Locales(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"fr", "pt-BR"}, locales)

	rows, err := svc.List(ctx, "fr")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "messages", rows[0].Group)

	require.NoError(t, svc.Delete(ctx, "fr", "shop", "buy"))
	require.ErrorIs(t, svc.Delete(ctx, "fr", "shop", "buy"), apperrors.ErrNotFound)

	exported, err = svc.Export(ctx, "fr")
	require.NoError(t, err)
	require.Len(t, exported, 1)

	_, err = svc.Set(ctx, TranslationInput{Locale: "fr", Key: " "})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}
