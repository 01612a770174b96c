package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap.Logger from LOG_LEVEL and LOG_FORMAT.
// LOG_FORMAT "text" builds a human-readable console encoder; "json"
// (the default) or an empty value builds a production JSON encoder.
// Any other LOG_FORMAT is an error.
func NewLogger(s *Settings) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", s.LogLevel, err)
	}

	var cfg zap.Config
	switch s.LogFormat {
	case "text":
		cfg = zap.NewDevelopmentConfig()
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: must be \"json\" or \"text\"", s.LogFormat)
	}

	cfg.Level = zap.NewAtomicLevelAt(level)

	return cfg.Build()
}
