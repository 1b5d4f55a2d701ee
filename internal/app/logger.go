package app

import (
	"strings"

	"go.uber.org/zap"

	"github.com/exiloncms/exiloncms/pkg/logger"
)

// ConfigureLogging initialises the process logger from the server section,
// defaulting to info level JSON. Every entry carries the running version.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(cfg.LogFormat)
	if format == "" {
		format = "json"
	}
	return logger.Init(level, format, zap.String("version", Version))
}
