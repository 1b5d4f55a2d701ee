package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the ExilonCMS backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Extensions  ExtensionsConfig  `mapstructure:"extensions"`
	Backup      BackupConfig      `mapstructure:"backup"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Events      EventsConfig      `mapstructure:"events"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	LogLevel    string   `mapstructure:"log_level"`
	LogFormat   string   `mapstructure:"log_format"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	RateLimit   int      `mapstructure:"rate_limit"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Prefix   string        `mapstructure:"prefix"`
}

// AuthConfig captures authentication settings for the admin API.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// ExtensionsConfig locates plugin and theme directories and remote registries.
type ExtensionsConfig struct {
	PluginsPath    string            `mapstructure:"plugins_path"`
	ThemesPath     string            `mapstructure:"themes_path"`
	TempPath       string            `mapstructure:"temp_path"`
	MaxUploadSize  int64             `mapstructure:"max_upload_size"`
	UpdateCacheTTL time.Duration     `mapstructure:"update_cache_ttl"`
	CoreVersion    string            `mapstructure:"core_version"`
	CoreRepository string            `mapstructure:"core_repository"`
	GitHub         GitHubConfig      `mapstructure:"github"`
	Marketplace    MarketplaceConfig `mapstructure:"marketplace"`
}

// GitHubConfig configures the GitHub releases API client.
type GitHubConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MarketplaceConfig configures the marketplace REST API client.
type MarketplaceConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BackupConfig controls SQLite backups.
type BackupConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Dir      string `mapstructure:"dir"`
	Schedule string `mapstructure:"schedule"`
	Keep     int    `mapstructure:"keep"`
}

// MaintenanceConfig controls recurring background jobs.
type MaintenanceConfig struct {
	ActionLogRetentionDays int    `mapstructure:"action_log_retention_days"`
	UpdateCheckSchedule    string `mapstructure:"update_check_schedule"`
	LogRetentionSchedule   string `mapstructure:"log_retention_schedule"`
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig holds broker settings for the event publisher.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig searches ./config and the supplied directories for config.yaml.
// A .env file in the working directory is loaded first so its values can feed
// EXILONCMS_* overrides. A missing config file is not an error.
func LoadConfig(paths ...string) (*Config, error) {
	return loadConfig(func(v *viper.Viper) {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		for _, path := range paths {
			v.AddConfigPath(path)
		}
	})
}

// LoadConfigFrom loads configuration from the location given on a command
// line. A directory is searched for config.yaml, a file is read whatever its
// name, and an empty path falls back to LoadConfig.
func LoadConfigFrom(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return LoadConfig()
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config: path %q does not exist", path)
	case err != nil:
		return nil, fmt.Errorf("config: stat %q: %w", path, err)
	case info.IsDir():
		return LoadConfig(path)
	}
	return loadConfig(func(v *viper.Viper) {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("yaml")
		}
	})
}

func loadConfig(locate func(v *viper.Viper)) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	locate(v)
	setDefaults(v)

	v.SetEnvPrefix("EXILONCMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 300)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/exiloncms.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")
	v.SetDefault("cache.redis.prefix", "exiloncms")

	v.SetDefault("auth.jwt.issuer", "exiloncms")
	v.SetDefault("auth.jwt.access_token_ttl", "12h")

	v.SetDefault("extensions.plugins_path", "./plugins")
	v.SetDefault("extensions.themes_path", "./themes")
	v.SetDefault("extensions.temp_path", "./data/tmp")
	v.SetDefault("extensions.max_upload_size", 50<<20)
	v.SetDefault("extensions.update_cache_ttl", "1h")
	v.SetDefault("extensions.core_version", Version)
	v.SetDefault("extensions.core_repository", "ExilonStudios/ExilonCMS")
	v.SetDefault("extensions.github.api_url", "https://api.github.com")
	v.SetDefault("extensions.github.timeout", "10s")
	v.SetDefault("extensions.marketplace.enabled", true)
	v.SetDefault("extensions.marketplace.url", "https://marketplace.exiloncms.fr/api")
	v.SetDefault("extensions.marketplace.timeout", "10s")

	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.dir", "./data/backups")
	v.SetDefault("backup.schedule", "@daily")
	v.SetDefault("backup.keep", 7)

	v.SetDefault("maintenance.action_log_retention_days", 90)
	v.SetDefault("maintenance.update_check_schedule", "@every 6h")
	v.SetDefault("maintenance.log_retention_schedule", "@daily")

	v.SetDefault("events.kafka.enabled", false)
	v.SetDefault("events.kafka.topic", "exiloncms.extensions")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
