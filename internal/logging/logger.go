// Package logging builds the service's root zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName names the root logger and tags every entry.
const ServiceName = "pageproxy"

// Options selects the encoder and the minimum level.
type Options struct {
	Development bool
	// Level is a zap level name. Empty means debug in development and info
	// otherwise.
	Level string
}

// New builds the root logger. Components derive children with Named, so entries
// read "pageproxy.render", "pageproxy.api" and so on.
func New(opts Options) (*zap.Logger, error) {
	return build(opts, nil)
}

// ParseLevel validates a configured level name.
func ParseLevel(name string) (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("parse log level: %w", err)
	}
	return lvl, nil
}

func build(opts Options, outputPaths []string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.InitialFields = map[string]any{"service": ServiceName}
	if opts.Level != "" {
		lvl, err := ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	if len(outputPaths) > 0 {
		cfg.OutputPaths = outputPaths
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named(ServiceName), nil
}
