package main

import (
	"fmt"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// newLogger returns an slog logger backed by zap. Output is JSON unless
// verbose is set, which switches to the console encoder at debug level.
// The returned func flushes buffered entries.
func newLogger(level string, verbose bool) (*slog.Logger, func(), error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		var parsed zapcore.Level
		if err := parsed.Set(level); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	cfg.DisableStacktrace = true

	zl, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	logger := slog.New(zapslog.NewHandler(zl.Core(), zapslog.WithCaller(verbose)))
	return logger, func() { _ = zl.Sync() }, nil
}
