// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the process-wide logger. It is a no-op until InitLogger or Replace runs.
var L = zap.NewNop()

// InitLogger installs a development logger as L so that startup messages are
// visible before configuration has been read.
func InitLogger() {
	logger, err := New(true)
	if err != nil {
		return
	}
	Replace(logger)
}

// Replace swaps L and the zap globals for logger.
func Replace(logger *zap.Logger) {
	if logger == nil {
		return
	}
	L = logger
	zap.ReplaceGlobals(logger)
}

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}
