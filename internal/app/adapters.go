package app

import (
	"strings"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/database"
)

// ConnectionConfig selects the credentials block matching the configured
// driver. The postgresql and mariadb aliases are accepted.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	cfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   c.Path,
		DSN:    c.DSN,
	}

	creds, ok := map[string]DBAuthConfig{
		database.DriverPostgres: c.Postgres,
		"postgresql":            c.Postgres,
		database.DriverMySQL:    c.MySQL,
		"mariadb":               c.MySQL,
	}[cfg.Driver]
	if !ok {
		return cfg
	}
	cfg.Host, cfg.Port, cfg.Name = creds.Host, creds.Port, creds.Database
	cfg.User, cfg.Password = creds.Username, creds.Password
	return cfg
}

// RedisActive reports whether the shared redis cache should be dialled. An
// enabled block without an address keeps the site on the database cache.
func (c CacheConfig) RedisActive() bool {
	return c.Redis.Enabled && strings.TrimSpace(c.Redis.Address) != ""
}

// RedisClientConfig builds the cache client options, scoping keys under the
// configured prefix so several sites can share one redis database.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	r := c.Redis
	prefix := strings.TrimSpace(r.Prefix)
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return cache.RedisConfig{
		Address:  strings.TrimSpace(r.Address),
		Username: strings.TrimSpace(r.Username),
		Password: r.Password,
		DB:       r.DB,
		TLS:      r.TLS,
		Timeout:  r.Timeout,
		Prefix:   prefix,
	}
}
