package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/extensions"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
)

// Service level errors shared by the extension lifecycle.
var (
	ErrExtensionNotFound = apperrors.New("EXTENSION_NOT_FOUND", "Extension not found", http.StatusNotFound)
	ErrExtensionExists   = apperrors.New("EXTENSION_EXISTS", "Extension is already installed", http.StatusConflict)
	ErrInvalidArchive    = apperrors.New("INVALID_ARCHIVE", "Uploaded file is not a valid extension archive", http.StatusBadRequest)
	ErrIncompatibleCore  = apperrors.New("INCOMPATIBLE_CORE", "Extension requires a newer ExilonCMS version", http.StatusBadRequest)
	ErrNoUpdate          = apperrors.New("NO_UPDATE", "No update available", http.StatusNotFound)
	ErrNotSQLite         = apperrors.New("NOT_SQLITE", "Only available with the SQLite driver", http.StatusBadRequest)
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") || strings.Contains(lower, "duplicate")
}

// extensionError converts extension package errors into client errors.
// Unknown errors pass through untouched.
func extensionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, extensions.ErrExtensionNotFound):
		return ErrExtensionNotFound.WithInternal(err)
	case errors.Is(err, extensions.ErrAlreadyInstalled):
		return ErrExtensionExists.WithInternal(err)
	case errors.Is(err, extensions.ErrArchiveTooLarge):
		return apperrors.ErrPayloadTooLarge.WithInternal(err)
	case errors.Is(err, extensions.ErrInvalidArchive),
		errors.Is(err, extensions.ErrUnsafePath):
		return ErrInvalidArchive.WithInternal(err)
	case errors.Is(err, extensions.ErrManifestNotFound),
		errors.Is(err, extensions.ErrKindMismatch),
		errors.Is(err, extensions.ErrInvalidManifest),
		errors.Is(err, extensions.ErrMissingID),
		errors.Is(err, extensions.ErrInvalidID),
		errors.Is(err, extensions.ErrMissingName),
		errors.Is(err, extensions.ErrInvalidSection),
		errors.Is(err, extensions.ErrInvalidPermission),
		errors.Is(err, extensions.ErrIDMismatch):
		return apperrors.ErrInvalidManifest.WithMessage(err.Error()).WithInternal(err)
	case errors.Is(err, extensions.ErrMigrationFailed):
		return apperrors.ErrMigrationFailed.WithInternal(err)
	case errors.Is(err, extensions.ErrUnknownKind):
		return apperrors.NewBadRequest(err.Error())
	}
	return err
}
