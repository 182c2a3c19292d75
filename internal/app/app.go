// Package app wires the pipeline into an fx application.
package app

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"example.com/analytics/internal/config"
	"example.com/analytics/internal/logger"
	"example.com/analytics/internal/telemetry"
)

// Module provides every component. Invocation order matters: hooks stop in
// reverse, so the HTTP server stops first, then the processor drains, then
// storage closes.
func Module(cfg config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideStore,
			provideQueue,
			provideFilter,
			provideCollector,
			provideCounter,
			provideProcessor,
			provideHandler,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		telemetry.Module(),
		fx.Invoke(runProcessor),
		fx.Invoke(startHTTPServer),
		fx.Invoke(runRetention),
	)
}

func New(cfg config.Config, opts ...fx.Option) *fx.App {
	return fx.New(append([]fx.Option{Module(cfg)}, opts...)...)
}

func provideLogger(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			err := log.Sync()
			if pathErr, ok := err.(*os.PathError); ok && pathErr.Err.Error() == "invalid argument" {
				return nil
			}
			return err
		},
	})
	return log, nil
}
