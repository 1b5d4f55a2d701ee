package services

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/extensions"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/logger"
	"github.com/exiloncms/exiloncms/pkg/metrics"
)

const (
	backupPrefix    = "exiloncms-"
	backupExt       = ".sqlite"
	backupTimestamp = "20060102-150405"
	maxImportSize   = 256 << 20
)

// BackupFile describes a backup stored on disk.
type BackupFile struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// BackupService snapshots, optimizes, dumps and restores the SQLite database.
type BackupService struct {
	db      *gorm.DB
	dir     string
	actions *ActionLogService
	log     *zap.Logger
	now     func() time.Time
}

// NewBackupService constructs a BackupService writing into dir.
func NewBackupService(db *gorm.DB, dir string, actions *ActionLogService) (*BackupService, error) {
	if db == nil {
		return nil, errors.New("backup service: db is required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("backup service: directory is required")
	}
	return &BackupService{db: db, dir: dir, actions: actions, log: logger.WithModule("backups"), now: time.Now}, nil
}

// Supported reports whether the connected database is SQLite.
func (s *BackupService) Supported() bool {
	return s.db.Dialector.Name() == "sqlite"
}

// Create writes a consistent copy of the database with VACUUM INTO.
func (s *BackupService) Create(ctx context.Context) (file *BackupFile, err error) {
	ctx = ensureContext(ctx)
	defer func() { metrics.Backups.WithLabelValues("create", metrics.Result(err)).Inc() }()

	if !s.Supported() {
		return nil, ErrNotSQLite
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("backup service: create dir: %w", err)
	}

	name := backupPrefix + s.now().UTC().Format(backupTimestamp) + backupExt
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		return nil, apperrors.NewConflict("a backup was already created this second")
	}

	if err := s.db.WithContext(ctx).Exec("VACUUM INTO ?", path).Error; err != nil {
		return nil, fmt.Errorf("backup service: vacuum into: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("backup service: stat backup: %w", err)
	}
	file = &BackupFile{Name: name, Size: info.Size(), CreatedAt: info.ModTime().UTC()}

	s.log.Info("backup created", zap.String("file", name), zap.Int64("size", file.Size))
	recordAction(s.actions, ctx, ActionEntry{Action: ActionBackupCreate, EntityType: "backup", EntityID: name})
	return file, nil
}

// List returns stored backups, newest first.
func (s *BackupService) List(ctx context.Context) ([]BackupFile, error) {
	_ = ensureContext(ctx)

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []BackupFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backup service: read dir: %w", err)
	}

	files := make([]BackupFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isBackupName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, BackupFile{Name: entry.Name(), Size: info.Size(), CreatedAt: info.ModTime().UTC()})
	}
	// names embed the timestamp, so lexical order is chronological
	sort.Slice(files, func(i, j int) bool { return files[i].Name > files[j].Name })
	return files, nil
}

// Path resolves a backup name to its file, rejecting anything outside the directory.
func (s *BackupService) Path(name string) (string, error) {
	if !isBackupName(name) || filepath.Base(name) != name {
		return "", apperrors.NewBadRequest("invalid backup name")
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", apperrors.NewNotFound("backup")
		}
		return "", fmt.Errorf("backup service: stat: %w", err)
	}
	return path, nil
}

// Delete removes a backup file.
func (s *BackupService) Delete(ctx context.Context, name string) (err error) {
	ctx = ensureContext(ctx)
	defer func() { metrics.Backups.WithLabelValues("delete", metrics.Result(err)).Inc() }()

	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("backup service: remove: %w", err)
	}
	recordAction(s.actions, ctx, ActionEntry{Action: ActionBackupDelete, EntityType: "backup", EntityID: name})
	return nil
}

// Prune keeps the newest keep backups and removes the rest.
func (s *BackupService) Prune(ctx context.Context, keep int) ([]string, error) {
	ctx = ensureContext(ctx)
	if keep <= 0 {
		return nil, nil
	}
	files, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) <= keep {
		return nil, nil
	}

	removed := make([]string, 0, len(files)-keep)
	for _, file := range files[keep:] {
		if err := os.Remove(filepath.Join(s.dir, file.Name)); err != nil {
			return removed, fmt.Errorf("backup service: prune %s: %w", file.Name, err)
		}
		removed = append(removed, file.Name)
	}
	s.log.Info("old backups pruned", zap.Strings("files", removed))
	return removed, nil
}

// Optimize rebuilds the database file and refreshes planner statistics.
func (s *BackupService) Optimize(ctx context.Context) (err error) {
	ctx = ensureContext(ctx)
	defer func() { metrics.Backups.WithLabelValues("optimize", metrics.Result(err)).Inc() }()

	if !s.Supported() {
		return ErrNotSQLite
	}
	for _, stmt := range []string{"VACUUM", "ANALYZE"} {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("backup service: %s: %w", strings.ToLower(stmt), err)
		}
	}
	recordAction(s.actions, ctx, ActionEntry{Action: ActionDatabaseOptimize, EntityType: "database"})
	return nil
}

type schemaObject struct {
	Type string
	Name string
	SQL  string
}

// Export writes an SQL dump: schema statements followed by one INSERT per row.
func (s *BackupService) Export(ctx context.Context, w io.Writer) (err error) {
	ctx = ensureContext(ctx)
	defer func() { metrics.Backups.WithLabelValues("export", metrics.Result(err)).Inc() }()

	if !s.Supported() {
		return ErrNotSQLite
	}

	var objects []schemaObject
	if err := s.db.WithContext(ctx).Raw(
		"SELECT type, name, sql FROM sqlite_master WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%' ORDER BY CASE type WHEN 'table' THEN 0 ELSE 1 END, name",
	).Scan(&objects).Error; err != nil {
		return fmt.Errorf("backup service: read schema: %w", err)
	}

	out := bufio.NewWriter(w)
	fmt.Fprintf(out, "-- ExilonCMS SQL dump %s\n", s.now().UTC().Format(time.RFC3339))
	fmt.Fprintln(out, "PRAGMA defer_foreign_keys = ON;")

	for _, obj := range objects {
		if obj.Type == "table" {
			fmt.Fprintf(out, "DROP TABLE IF EXISTS %s;\n", quoteIdent(obj.Name))
		}
		fmt.Fprintf(out, "%s;\n", obj.SQL)
	}
	for _, obj := range objects {
		if obj.Type != "table" {
			continue
		}
		if err := s.dumpRows(ctx, out, obj.Name); err != nil {
			return err
		}
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("backup service: write dump: %w", err)
	}
	return nil
}

func (s *BackupService) dumpRows(ctx context.Context, out *bufio.Writer, table string) error {
	rows, err := s.db.WithContext(ctx).Raw("SELECT * FROM " + quoteIdent(table)).Rows()
	if err != nil {
		return fmt.Errorf("backup service: read %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("backup service: columns of %s: %w", table, err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return fmt.Errorf("backup service: column types of %s: %w", table, err)
	}
	quoted := make([]string, len(columns))
	textual := make([]bool, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
		textual[i] = !strings.Contains(strings.ToUpper(types[i].DatabaseTypeName()), "BLOB")
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES (", quoteIdent(table), strings.Join(quoted, ", "))

	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return fmt.Errorf("backup service: scan %s: %w", table, err)
		}
		literals := make([]string, len(values))
		for i, value := range values {
			if raw, ok := value.([]byte); ok && textual[i] {
				value = string(raw)
			}
			literals[i] = sqlLiteral(value)
		}
		fmt.Fprintf(out, "%s%s);\n", prefix, strings.Join(literals, ", "))
	}
	return rows.Err()
}

// Import executes a dump produced by Export inside one transaction. Any
// failing statement rolls the whole import back.
func (s *BackupService) Import(ctx context.Context, r io.Reader) (err error) {
	ctx = ensureContext(ctx)
	defer func() { metrics.Backups.WithLabelValues("import", metrics.Result(err)).Inc() }()

	if !s.Supported() {
		return ErrNotSQLite
	}

	data, err := io.ReadAll(io.LimitReader(r, maxImportSize+1))
	if err != nil {
		return fmt.Errorf("backup service: read dump: %w", err)
	}
	if len(data) > maxImportSize {
		return apperrors.ErrPayloadTooLarge
	}

	statements := extensions.SplitSQLStatements(string(data))
	if len(statements) == 0 {
		return apperrors.NewBadRequest("the dump contains no statements")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, stmt := range statements {
			switch strings.ToUpper(strings.TrimSpace(stmt)) {
			case "BEGIN", "BEGIN TRANSACTION", "COMMIT", "END", "END TRANSACTION":
				continue
			}
			if err := tx.Exec(stmt).Error; err != nil {
				return apperrors.NewBadRequest(fmt.Sprintf("statement %d failed: %v", i+1, err)).WithInternal(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("sql dump imported", zap.Int("statements", len(statements)))
	recordAction(s.actions, ctx, ActionEntry{
		Action:     ActionBackupImport,
		EntityType: "database",
		Data:       map[string]any{"statements": len(statements)},
	})
	return nil
}

func isBackupName(name string) bool {
	return strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, backupExt)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlLiteral(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case bool:
		if v {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []byte:
		return "X'" + hex.EncodeToString(v) + "'"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case time.Time:
		return "'" + v.UTC().Format("2006-01-02 15:04:05.999999999-07:00") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(v), "'", "''") + "'"
	}
}
