package extensions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/models"
)

// ErrMigrationFailed wraps the failing migration file.
var ErrMigrationFailed = errors.New("extensions: plugin migration failed")

const migrationsDir = "migrations"

// Migrator applies the SQL migrations shipped in a plugin's migrations
// directory. Files run in lexical order and each one is recorded in
// plugin_migrations inside the same transaction as its statements.
type Migrator struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMigrator constructs a Migrator.
func NewMigrator(db *gorm.DB) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("extensions: migrator requires a database")
	}
	return &Migrator{db: db, now: time.Now}, nil
}

// Pending lists migration files that have not been applied yet.
func (m *Migrator) Pending(ctx context.Context, plugin *Info) ([]string, error) {
	if plugin == nil {
		return nil, errors.New("extensions: plugin is required")
	}

	files, err := migrationFiles(plugin.Path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	var applied []string
	if err := m.db.WithContext(ctx).
		Model(&models.PluginMigration{}).
		Where("plugin = ?", plugin.ID).
		Pluck("migration", &applied).Error; err != nil {
		return nil, fmt.Errorf("extensions: load applied migrations: %w", err)
	}
	done := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		done[name] = struct{}{}
	}

	pending := make([]string, 0, len(files))
	for _, name := range files {
		if _, ok := done[name]; !ok {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

// Run applies every pending migration and returns the names applied. It stops
// at the first failure; earlier files stay applied.
func (m *Migrator) Run(ctx context.Context, plugin *Info) ([]string, error) {
	pending, err := m.Pending(ctx, plugin)
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(pending))
	for _, name := range pending {
		script, err := os.ReadFile(filepath.Join(plugin.Path, migrationsDir, name))
		if err != nil {
			return applied, fmt.Errorf("%w: %s: %v", ErrMigrationFailed, name, err)
		}

		err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, stmt := range SplitSQLStatements(string(script)) {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return tx.Create(&models.PluginMigration{
				Plugin:    plugin.ID,
				Migration: name,
				AppliedAt: m.now(),
			}).Error
		})
		if err != nil {
			return applied, fmt.Errorf("%w: %s/%s: %v", ErrMigrationFailed, plugin.ID, name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// Forget deletes migration bookkeeping for a plugin. Tables created by the
// plugin are left untouched.
func (m *Migrator) Forget(ctx context.Context, pluginID string) error {
	return m.db.WithContext(ctx).
		Where("plugin = ?", pluginID).
		Delete(&models.PluginMigration{}).Error
}

func migrationFiles(pluginDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(pluginDir, migrationsDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("extensions: read migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// SplitSQLStatements splits a script on semicolons that are outside quotes
// and comments. Empty statements are dropped.
func SplitSQLStatements(script string) []string {
	var (
		statements   []string
		current      strings.Builder
		quote        rune
		lineComment  bool
		blockComment bool
	)

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case lineComment:
			if r == '\n' {
				lineComment = false
				current.WriteRune(r)
			}
			continue
		case blockComment:
			if r == '*' && next == '/' {
				blockComment = false
				i++
			}
			continue
		case quote != 0:
			current.WriteRune(r)
			if r == quote {
				if next == quote {
					current.WriteRune(next)
					i++
				} else {
					quote = 0
				}
			}
			continue
		}

		switch {
		case r == '-' && next == '-':
			lineComment = true
			i++
		case r == '/' && next == '*':
			blockComment = true
			i++
		case r == '\'' || r == '"' || r == '`':
			quote = r
			current.WriteRune(r)
		case r == ';':
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
