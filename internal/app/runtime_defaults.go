package app

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/exiloncms/exiloncms/pkg/crypto"
)

const jwtSecretBytes = 48

// ApplyRuntimeDefaults ensures critical secrets and paths are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if strings.TrimSpace(cfg.Extensions.TempPath) == "" {
		cfg.Extensions.TempPath = filepath.Join(filepath.Dir(cfg.Database.Path), "tmp")
		generated["extensions.temp_path"] = true
	}

	if strings.TrimSpace(cfg.Extensions.CoreVersion) == "" {
		cfg.Extensions.CoreVersion = Version
		generated["extensions.core_version"] = true
	}

	return generated, nil
}
