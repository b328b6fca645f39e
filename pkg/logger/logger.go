// Package logger holds the process-wide zap logger. It starts as a nop so
// code paths that run before Init, config loading and tests included, stay
// quiet instead of panicking.
package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// Init replaces the global logger with a production logger at the given
// level. Blank or unknown level strings fall back to info rather than
// failing startup.
func Init(level string) error {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	global = logger
	mu.Unlock()
	return nil
}

// ParseLevel maps a config level string onto a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// Logger returns the current global logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// WithModule returns a child logger tagged with the subsystem name. Every
// package of the relay logs through one of these so log lines can be filtered
// per concern (bootstrap, relay, storage, http).
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}

// Sync flushes buffered log entries. Called on shutdown, best effort.
func Sync() error {
	return Logger().Sync()
}
