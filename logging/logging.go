// Package logging builds the process logger from the log configuration.
package logging

import (
	"fmt"
	"time"

	"github.com/najoast/uboss/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel converts a configured level to a zap level.
func ParseLevel(level config.LogLevel) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// Options returns the logger options implied by the application settings.
// Debug mode panics on DPanic and attaches stack traces from warn level;
// production samples repeated entries.
func Options(cfg *config.Config) []zap.Option {
	var opts []zap.Option
	if cfg.IsDebugEnabled() {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	}
	if cfg.IsProduction() {
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewSamplerWithOptions(core, time.Second, 100, 100)
		}))
	}
	return opts
}

// New returns a logger for cfg and the atomic level backing it, so the
// level can be changed while the process runs. opts are applied after the
// defaults.
func New(cfg config.LogConfig, opts ...zap.Option) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	atom := zap.NewAtomicLevelAt(level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch cfg.Format {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "text", "":
		if cfg.Color {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, zap.AtomicLevel{}, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	output := cfg.Output
	if output == "" {
		output = "stdout"
	}
	sink, _, err := zap.Open(output)
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("open log output %s: %w", output, err)
	}

	opts = append([]zap.Option{zap.AddCaller(), zap.ErrorOutput(sink)}, opts...)
	logger := zap.New(zapcore.NewCore(enc, sink, atom), opts...)
	return logger, atom, nil
}

// Watch applies log level changes from config reloads to atom.
func Watch(watcher *config.Watcher, atom zap.AtomicLevel, logger *zap.Logger) {
	watcher.OnConfigChange(func(oldConfig, newConfig *config.Config) {
		if oldConfig.Log.Level == newConfig.Log.Level {
			return
		}
		level, err := ParseLevel(newConfig.Log.Level)
		if err != nil {
			logger.Warn("ignoring log level change", zap.Error(err))
			return
		}
		atom.SetLevel(level)
		logger.Info("log level changed", zap.Stringer("level", level))
	})
}
