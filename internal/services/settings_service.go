package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/internal/models"
	"github.com/exiloncms/exiloncms/pkg/logger"
)

const (
	settingsCachePrefix = "settings:"
	settingsCacheTTL    = 10 * time.Minute
)

// SettingsService reads and writes key/value settings. Single-key reads go
// through the cache store, which the server and exiloncmsctl share, so a write
// from either process is visible to the other once it returns.
type SettingsService struct {
	db    *gorm.DB
	store cache.Store
	ttl   time.Duration
	log   *zap.Logger
}

// NewSettingsService constructs a SettingsService. store may be nil.
func NewSettingsService(db *gorm.DB, store cache.Store) (*SettingsService, error) {
	if db == nil {
		return nil, errors.New("settings service: db is required")
	}
	return &SettingsService{
		db:    db,
		store: store,
		ttl:   settingsCacheTTL,
		log:   logger.WithModule("settings"),
	}, nil
}

// Get returns the value for key and whether it exists.
func (s *SettingsService) Get(ctx context.Context, key string) (string, bool, error) {
	ctx = ensureContext(ctx)
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, nil
	}

	if s.store != nil {
		if raw, ok, err := s.store.Get(ctx, settingsCachePrefix+key); err == nil && ok {
			return string(raw), true, nil
		} else if err != nil {
			s.log.Debug("settings cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	var row models.Setting
	err := s.db.WithContext(ctx).Where(&models.Setting{Key: key}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("settings service: get %q: %w", key, err)
	}

	if s.store != nil {
		_ = s.store.Set(ctx, settingsCachePrefix+key, []byte(row.Value), s.ttl)
	}
	return row.Value, true, nil
}

// GetString returns the value for key or fallback when unset.
func (s *SettingsService) GetString(ctx context.Context, key, fallback string) (string, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return fallback, err
	}
	return value, nil
}

// GetAll returns every setting, read straight from the database.
func (s *SettingsService) GetAll(ctx context.Context) (map[string]string, error) {
	ctx = ensureContext(ctx)

	var rows []models.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("settings service: list: %w", err)
	}
	all := make(map[string]string, len(rows))
	for _, row := range rows {
		all[row.Key] = row.Value
	}
	return all, nil
}

// Set stores a single value.
func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value})
}

// SetMany stores several values in one transaction.
func (s *SettingsService) SetMany(ctx context.Context, values map[string]string) error {
	ctx = ensureContext(ctx)
	if len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			key = strings.TrimSpace(key)
			if key == "" {
				return errors.New("settings service: empty key")
			}
			if err := database.UpsertSetting(ctx, tx, key, value); err != nil {
				return err
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("settings service: set: %w", err)
	}

	s.invalidate(ctx, keys...)
	return nil
}

// Delete removes a key.
func (s *SettingsService) Delete(ctx context.Context, key string) error {
	ctx = ensureContext(ctx)
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if err := s.db.WithContext(ctx).Where(&models.Setting{Key: key}).Delete(&models.Setting{}).Error; err != nil {
		return fmt.Errorf("settings service: delete %q: %w", key, err)
	}
	s.invalidate(ctx, key)
	return nil
}

// GetBool parses a boolean setting, returning fallback when unset or invalid.
func (s *SettingsService) GetBool(ctx context.Context, key string, fallback bool) bool {
	value, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

// GetInt parses an integer setting, returning fallback when unset or invalid.
func (s *SettingsService) GetInt(ctx context.Context, key string, fallback int) int {
	value, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

// GetList decodes a JSON array setting. Comma separated values written by
// hand are accepted too.
func (s *SettingsService) GetList(ctx context.Context, key string) ([]string, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	return parseList(value), nil
}

// SetList stores values as a JSON array.
func (s *SettingsService) SetList(ctx context.Context, key string, values []string) error {
	values = normaliseIDs(values)
	if values == nil {
		values = []string{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("settings service: encode list: %w", err)
	}
	return s.Set(ctx, key, string(encoded))
}

// ClearCache drops every cached setting.
func (s *SettingsService) ClearCache(ctx context.Context) error {
	ctx = ensureContext(ctx)
	if s.store == nil {
		return nil
	}
	if err := s.store.DeletePrefix(ctx, settingsCachePrefix); err != nil {
		return fmt.Errorf("settings service: clear cache: %w", err)
	}
	return nil
}

func (s *SettingsService) invalidate(ctx context.Context, keys ...string) {
	if s.store == nil || len(keys) == 0 {
		return
	}
	cacheKeys := make([]string, len(keys))
	for i, key := range keys {
		cacheKeys[i] = settingsCachePrefix + key
	}
	if err := s.store.Delete(ctx, cacheKeys...); err != nil {
		s.log.Warn("settings cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func parseList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	var out []string
	if strings.HasPrefix(value, "[") {
		if err := json.Unmarshal([]byte(value), &out); err == nil {
			return normaliseIDs(out)
		}
	}
	return normaliseIDs(strings.Split(value, ","))
}
