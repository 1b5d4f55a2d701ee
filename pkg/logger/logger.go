// Package logger holds the process wide zap logger. It is a no-op until Init
// runs so packages can log from init paths and tests without setup.
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	current = zap.NewNop()
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init builds the process logger. Format "console" selects the development
// encoder used on terminals, anything else logs JSON. An unknown level falls
// back to info. The fields are attached to every entry.
func Init(lvl, format string, fields ...zap.Field) error {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = level
	if err := SetLevel(lvl); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	built, err := cfg.Build(zap.Fields(fields...))
	if err != nil {
		return fmt.Errorf("logger: build: %w", err)
	}
	Replace(built)
	return nil
}

// SetLevel changes the minimum level of the logger built by Init.
func SetLevel(lvl string) error {
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(lvl))); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	level.SetLevel(parsed)
	return nil
}

// Replace installs l as the process logger and returns a function restoring
// the previous one.
func Replace(l *zap.Logger) (restore func()) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	previous := current
	current = l
	mu.Unlock()
	return func() { Replace(previous) }
}

// Logger returns the process logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Sync flushes buffered entries.
func Sync() error {
	return Logger().Sync()
}

// WithModule returns a child logger tagged with the subsystem name.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}
