package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/internal/models"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
)

// InstallInput is submitted by the setup wizard.
type InstallInput struct {
	SiteName string
	SiteURL  string
	Locale   string
	Username string
	Email    string
	Password string
}

// InstallStatus reports whether setup has completed.
type InstallStatus struct {
	Installed   bool       `json:"installed"`
	InstalledAt *time.Time `json:"installed_at,omitempty"`
	Version     string     `json:"version"`
}

// InstallService runs the first-start wizard.
type InstallService struct {
	db       *gorm.DB
	settings *SettingsService
	users    *UserService
	actions  *ActionLogService
	version  string
	now      func() time.Time

	mu sync.Mutex
}

// NewInstallService constructs an InstallService.
func NewInstallService(db *gorm.DB, settings *SettingsService, users *UserService, actions *ActionLogService, version string) (*InstallService, error) {
	switch {
	case db == nil:
		return nil, errors.New("install service: db is required")
	case settings == nil:
		return nil, errors.New("install service: settings service is required")
	case users == nil:
		return nil, errors.New("install service: user service is required")
	}
	return &InstallService{db: db, settings: settings, users: users, actions: actions, version: version, now: time.Now}, nil
}

// Status reports whether the installed_at marker is set.
func (s *InstallService) Status(ctx context.Context) (InstallStatus, error) {
	value, ok, err := s.settings.Get(ensureContext(ctx), database.SettingInstalledAt)
	if err != nil {
		return InstallStatus{}, err
	}
	status := InstallStatus{Version: s.version}
	if !ok || strings.TrimSpace(value) == "" {
		return status, nil
	}
	status.Installed = true
	if at, err := time.Parse(time.RFC3339, value); err == nil {
		status.InstalledAt = &at
	}
	return status, nil
}

// Install creates the root administrator and stores the site settings in
// one transaction. It refuses to run twice.
func (s *InstallService) Install(ctx context.Context, input InstallInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	status, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	if status.Installed {
		return nil, apperrors.ErrAlreadyInstalled
	}

	siteName := strings.TrimSpace(input.SiteName)
	if siteName == "" {
		return nil, apperrors.NewBadRequest("site name is required")
	}
	siteURL := strings.TrimRight(strings.TrimSpace(input.SiteURL), "/")
	if parsed, err := url.Parse(siteURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, apperrors.NewBadRequest("site url must be an absolute URL")
	}
	locale, err := CanonicalLocale(defaultIfEmpty(input.Locale, "en"))
	if err != nil {
		return nil, err
	}

	installedAt := s.now().UTC()
	var admin *models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.users.create(ctx, tx, CreateUserInput{
			Username: input.Username,
			Email:    input.Email,
			Password: input.Password,
			IsRoot:   true,
		})
		if err != nil {
			return err
		}
		admin = user

		values := map[string]string{
			database.SettingSiteName:    siteName,
			database.SettingSiteURL:     siteURL,
			database.SettingSiteLocale:  locale,
			database.SettingInstalledAt: installedAt.Format(time.RFC3339),
		}
		for key, value := range values {
			if err := database.UpsertSetting(ctx, tx, key, value); err != nil {
				return fmt.Errorf("install service: store %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.settings.ClearCache(ctx); err != nil {
		return nil, err
	}
	recordAction(s.actions, ctx, ActionEntry{
		Action:     ActionCMSInstall,
		EntityType: userEntity,
		EntityID:   admin.ID,
		Data:       map[string]any{"site_name": siteName, "locale": locale},
	})
	return admin, nil
}
