// Package logger builds the zap logger shared by the job. Output is JSON on
// stderr with the field names Cloud Logging recognises, so severities survive
// when the job runs as a Cloud Function.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps DEBUG, INFO, WARN, ERROR (any case) to a zap level.
// Empty means INFO.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "", "INFO":
		return zapcore.InfoLevel, nil
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "WARN", "WARNING":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// New returns a sugared JSON logger at the given level.
func New(level string) (*zap.SugaredLogger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l.Sugar(), nil
}

// Must is New for program entry points; an invalid level falls back to INFO.
func Must(level string) *zap.SugaredLogger {
	l, err := New(level)
	if err == nil {
		return l
	}
	l, buildErr := New("INFO")
	if buildErr != nil {
		return zap.NewNop().Sugar()
	}
	l.Warnw("invalid LOG_LEVEL; using INFO", "error", err)
	return l
}

// Reconfigure returns a logger at level, typically the configured LOG_LEVEL
// once the full configuration is loaded. Empty or invalid levels keep current.
func Reconfigure(current *zap.SugaredLogger, level string) *zap.SugaredLogger {
	if strings.TrimSpace(level) == "" {
		return current
	}
	l, err := New(level)
	if err != nil {
		current.Warnw("invalid log level; keeping current", "level", level, "error", err)
		return current
	}
	return l
}
