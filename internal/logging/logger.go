// Package logging provides zap logger helpers and the leveled logger handed to drivers.
package logging

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

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
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

var startTime atomic.Pointer[time.Time]

// MarkStart records the process start time. Only the first call has an effect.
func MarkStart(t time.Time) {
	startTime.CompareAndSwap(nil, &t)
}

// Elapsed reports the time since MarkStart, or zero if it was never called.
func Elapsed() time.Duration {
	t := startTime.Load()
	if t == nil {
		return 0
	}
	return time.Since(*t)
}
