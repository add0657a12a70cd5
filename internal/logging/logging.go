// Package logging configures the process-wide zerolog logger and hands out
// per-component child loggers.
package logging

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"license-server/config"
)

var (
	mu   sync.RWMutex
	root zerolog.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Setup initializes the root logger from configuration and returns it.
func Setup(cfg config.LoggingConfig) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if cfg.JSONFormat {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	logger = logger.Level(level).With().Timestamp().Logger()

	mu.Lock()
	root = logger
	mu.Unlock()

	return logger
}

// Component returns a child logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("component", name).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
