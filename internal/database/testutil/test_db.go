// Package testutil opens throwaway SQLite databases for package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/database"
)

// Option adjusts the database prepared by MustOpenTestDB.
type Option func(*setup)

type setup struct {
	path     string
	schema   bool
	seed     bool
	settings map[string]string
}

// WithAutoMigrate creates the CMS tables without default rows.
func WithAutoMigrate() Option {
	return func(s *setup) { s.schema = true }
}

// WithSeedData creates the tables plus default roles, permissions and settings.
func WithSeedData() Option {
	return func(s *setup) {
		s.schema = true
		s.seed = true
	}
}

// WithFile stores the database in a file. Backups need one for VACUUM INTO.
func WithFile(path string) Option {
	return func(s *setup) { s.path = path }
}

// WithSettings seeds the database and then overrides the given settings.
func WithSettings(values map[string]string) Option {
	return func(s *setup) {
		s.schema = true
		s.seed = true
		if s.settings == nil {
			s.settings = make(map[string]string, len(values))
		}
		for key, value := range values {
			s.settings[key] = value
		}
	}
}

// MustOpenTestDB opens an isolated SQLite database closed at test cleanup.
func MustOpenTestDB(t testing.TB, opts ...Option) *gorm.DB {
	t.Helper()

	var s setup
	for _, opt := range opts {
		opt(&s)
	}

	db, err := database.Open(database.Config{Driver: database.DriverSQLite, Path: s.path})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	switch {
	case s.seed:
		require.NoError(t, database.AutoMigrateAndSeed(db))
	case s.schema:
		require.NoError(t, database.AutoMigrate(db))
	}
	for key, value := range s.settings {
		require.NoError(t, database.UpsertSetting(context.Background(), db, key, value))
	}
	return db
}
