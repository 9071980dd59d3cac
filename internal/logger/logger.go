package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON production logger at the given level
func New(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// Lambda captures stderr and stdout alike
	cfg.OutputPaths = []string{"stdout"}

	return cfg.Build()
}

// Must is New for process entrypoints, falling back to a default production logger on a bad level
func Must(level string) *zap.Logger {
	log, err := New(level)
	if err == nil {
		return log
	}
	log, buildErr := zap.NewProduction()
	if buildErr != nil {
		return zap.NewNop()
	}
	log.Warn("Falling back to info level", zap.Error(err))
	return log
}
