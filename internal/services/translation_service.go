package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/models"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/logger"
)

const (
	defaultTranslationGroup = "messages"
	translationCachePrefix  = "translations:"
	translationCacheTTL     = time.Hour
)

// TranslationInput identifies one override.
type TranslationInput struct {
	Locale string
	Group  string
	Key    string
	Value  string
}

// TranslationService stores per-locale overrides of translation keys.
type TranslationService struct {
	db      *gorm.DB
	store   cache.Store
	actions *ActionLogService
	log     *zap.Logger
}

// NewTranslationService constructs a TranslationService. store may be nil.
func NewTranslationService(db *gorm.DB, store cache.Store, actions *ActionLogService) (*TranslationService, error) {
	if db == nil {
		return nil, errors.New("translation service: db is required")
	}
	return &TranslationService{db: db, store: store, actions: actions, log: logger.WithModule("translations")}, nil
}

// CanonicalLocale parses a BCP 47 tag ("fr", "pt_BR", "en-us") into its
// canonical form ("fr", "pt-BR", "en-US").
func CanonicalLocale(value string) (string, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), "_", "-")
	if value == "" {
		return "", apperrors.NewBadRequest("locale is required")
	}
	tag, err := language.Parse(value)
	if err != nil {
		return "", apperrors.NewBadRequest(fmt.Sprintf("invalid locale %q", value)).WithInternal(err)
	}
	return tag.String(), nil
}

// Locales returns every locale with at least one override.
func (s *TranslationService) Locales(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	var locales []string
	if err := s.db.WithContext(ctx).Model(&models.Translation{}).Distinct("locale").Order("locale").Pluck("locale", &locales).Error; err != nil {
		return nil, fmt.Errorf("translation service: list locales: %w", err)
	}
	return locales, nil
}

// List returns the overrides of a locale ordered by group and key.
func (s *TranslationService) List(ctx context.Context, locale string) ([]models.Translation, error) {
	ctx = ensureContext(ctx)
	locale, err := CanonicalLocale(locale)
	if err != nil {
		return nil, err
	}
	var rows []models.Translation
	if err := s.db.WithContext(ctx).
		Where("locale = ?", locale).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "group"}}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("translation service: list: %w", err)
	}
	return rows, nil
}

// Export flattens a locale into "group.key" -> value.
func (s *TranslationService) Export(ctx context.Context, locale string) (map[string]string, error) {
	ctx = ensureContext(ctx)
	locale, err := CanonicalLocale(locale)
	if err != nil {
		return nil, err
	}

	key := translationCachePrefix + locale
	if s.store != nil {
		if cached, ok, err := cache.GetJSON[map[string]string](ctx, s.store, key); err == nil && ok {
			return cached, nil
		}
	}

	rows, err := s.List(ctx, locale)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Group+"."+row.Key] = row.Value
	}

	if s.store != nil {
		if err := cache.SetJSON(ctx, s.store, key, out, translationCacheTTL); err != nil {
			s.log.Warn("translation cache write failed", zap.String("locale", locale), zap.Error(err))
		}
	}
	return out, nil
}

// Set creates or replaces an override.
func (s *TranslationService) Set(ctx context.Context, input TranslationInput) (*models.Translation, error) {
	ctx = ensureContext(ctx)
	locale, err := CanonicalLocale(input.Locale)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(input.Key)
	if key == "" {
		return nil, apperrors.NewBadRequest("key is required")
	}
	row := models.Translation{
		Locale: locale,
		Group:  defaultIfEmpty(strings.TrimSpace(input.Group), defaultTranslationGroup),
		Key:    key,
		Value:  input.Value,
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "locale"}, {Name: "group"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("translation service: set: %w", err)
	}

	s.invalidate(ctx, locale)
	recordAction(s.actions, ctx, ActionEntry{
		Action:     ActionTranslationSet,
		EntityType: "translation",
		EntityID:   locale + ":" + row.Group + "." + key,
	})

	var stored models.Translation
	if err := s.db.WithContext(ctx).Where(models.Translation{Locale: locale, Group: row.Group, Key: key}).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("translation service: reload: %w", err)
	}
	return &stored, nil
}

// Delete removes an override, restoring the bundled translation.
func (s *TranslationService) Delete(ctx context.Context, locale, group, key string) error {
	ctx = ensureContext(ctx)
	locale, err := CanonicalLocale(locale)
	if err != nil {
		return err
	}
	group = defaultIfEmpty(strings.TrimSpace(group), defaultTranslationGroup)

	result := s.db.WithContext(ctx).
		Where(models.Translation{Locale: locale, Group: group, Key: strings.TrimSpace(key)}).
		Delete(&models.Translation{})
	if result.Error != nil {
		return fmt.Errorf("translation service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("translation")
	}
	s.invalidate(ctx, locale)
	return nil
}

func (s *TranslationService) invalidate(ctx context.Context, locale string) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, translationCachePrefix+locale); err != nil {
		s.log.Warn("translation cache not cleared", zap.String("locale", locale), zap.Error(err))
	}
}
