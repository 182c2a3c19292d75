package telemetry

import (
	"context"
	"time"

	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"example.com/analytics/internal/collector"
	"example.com/analytics/internal/config"
	"example.com/analytics/internal/queue"
)

const shutdownTimeout = 5 * time.Second

// Module provides the metric.MeterProvider and exports the pipeline gauges.
// With telemetry disabled the provider is a no-op.
func Module() fx.Option {
	return fx.Options(
		fx.Provide(provideMeterProvider),
		fx.Invoke(registerPipeline),
	)
}

func provideMeterProvider(lc fx.Lifecycle, log *zap.Logger, cfg config.Config) (metric.MeterProvider, error) {
	conf := cfg.Telemetry
	if !conf.Enabled {
		log.Info("otel metrics: disabled")
		return noop.NewMeterProvider(), nil
	}

	mp, err := NewProvider(context.Background(), conf)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			otel.SetMeterProvider(mp)
			startRuntimeMetrics(mp, log)
			log.Info("otel metrics initialized",
				zap.String("endpoint", conf.Endpoint),
				zap.Duration("interval", conf.Interval),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			c, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return mp.Shutdown(c)
		},
	})
	return mp, nil
}

func registerPipeline(lc fx.Lifecycle, mp metric.MeterProvider, c *collector.Collector, q *queue.Queue) error {
	reg, err := RegisterPipeline(mp, c.Metrics(), q)
	if err != nil {
		return err
	}
	lc.Append(fx.StopHook(reg.Unregister))
	return nil
}

// startRuntimeMetrics is best effort: the pipeline keeps running without
// runtime instruments.
func startRuntimeMetrics(mp metric.MeterProvider, log *zap.Logger) {
	err := otelruntime.Start(
		otelruntime.WithMeterProvider(mp),
		otelruntime.WithMinimumReadMemStatsInterval(time.Second),
	)
	if err != nil {
		log.Warn("runtime metrics unavailable", zap.Error(err))
	}
}
