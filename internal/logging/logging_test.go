package logging

import (
	"testing"

	"github.com/rs/zerolog"

	"license-server/config"
)

func TestSetupLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := Setup(config.LoggingConfig{Level: tt.level, JSONFormat: true})
			if logger.GetLevel() != tt.want {
				t.Errorf("GetLevel() = %v, want %v", logger.GetLevel(), tt.want)
			}
		})
	}
}

// Component returns a Logger value, and zerolog's event constructors take a
// pointer receiver, so callers must bind the result to a local before
// chaining.
func TestComponentLoggerBindsToLocal(t *testing.T) {
	Setup(config.LoggingConfig{Level: "error", JSONFormat: true})

	log := Component("test")
	log.Info().Str("key", "value").Msg("suppressed below error level")

	if log.GetLevel() != zerolog.ErrorLevel {
		t.Errorf("child level = %v, want %v", log.GetLevel(), zerolog.ErrorLevel)
	}
}
