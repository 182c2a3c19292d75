package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"example.com/analytics/internal/config"
)

type contextKey struct{}

var loggerCtxKey = contextKey{}

// New builds the process logger and installs it as the zap global.
func New(conf config.Logger) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if conf.Level != "" {
		parsed, err := zapcore.ParseLevel(conf.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level '%s': %w", conf.Level, err)
		}
		level = parsed
	}

	var cfg zap.Config
	if conf.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if len(conf.OutputPaths) > 0 {
		cfg.OutputPaths = conf.OutputPaths
	}

	l, err := cfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(l)

	l.Info("logger initialized",
		zap.String("level", level.String()),
		zap.Bool("development", conf.Development),
	)
	return l, nil
}

// Get returns the logger stored in ctx, or the zap global.
func Get(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return zap.L()
	}
	if l, ok := ctx.Value(loggerCtxKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.L()
}

// With returns a copy of ctx carrying l.
func With(ctx context.Context, l *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerCtxKey, l)
}
