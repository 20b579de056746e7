// Package logging builds the process logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mfateev/llm-relay-bot/internal/config"
)

// New builds a zap logger from cfg. verbose forces debug level. When
// outputPaths is non-empty it replaces the default stderr sink, which the
// console UI needs to keep the terminal clean.
func New(cfg config.LogConfig, verbose bool, outputPaths ...string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	if len(outputPaths) > 0 {
		zc.OutputPaths = outputPaths
		zc.ErrorOutputPaths = outputPaths
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
