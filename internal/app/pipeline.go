package app

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"example.com/analytics/internal/cache"
	"example.com/analytics/internal/collector"
	"example.com/analytics/internal/config"
	"example.com/analytics/internal/ingest"
	"example.com/analytics/internal/privacy"
	"example.com/analytics/internal/queue"
	"example.com/analytics/internal/retention"
	"example.com/analytics/internal/storage"
)

func provideQueue(cfg config.Config) (*queue.Queue, error) {
	policy, err := queue.ParsePolicy(cfg.Pipeline.Queue.Policy)
	if err != nil {
		return nil, err
	}
	return queue.New(policy, cfg.Pipeline.Queue.Capacity), nil
}

func provideFilter(cfg config.Config) (*privacy.Filter, error) {
	return privacy.New(cfg.Privacy)
}

func provideCollector(f *privacy.Filter, q *queue.Queue, log *zap.Logger) *collector.Collector {
	return collector.New(f, q, log)
}

// provideCounter returns nil when realtime counters are disabled.
func provideCounter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *cache.Counter {
	rc := cfg.Redis
	if !rc.Enabled {
		return nil
	}
	c := cache.NewCounter(rc.Addr, rc.Password, rc.DB, rc.TTL)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := c.Ping(ctx); err != nil {
				log.Warn("redis not reachable, realtime counters will lag", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error { return c.Close() },
	})
	return c
}

func provideProcessor(cfg config.Config, q *queue.Queue, store storage.Store, counter *cache.Counter, mp metric.MeterProvider, log *zap.Logger) (*ingest.Processor, error) {
	opts := []ingest.Option{ingest.WithMeterProvider(mp)}
	if counter != nil {
		opts = append(opts, ingest.WithObserver(counter))
	}
	return ingest.New(q.C(), store, cfg.Pipeline.BatchSize, cfg.Pipeline.FlushInterval, log, opts...)
}

// runProcessor starts the single consumer. Stopping closes the queue so the
// processor drains and makes its final flush before storage is closed. If the
// processor fails, the envelopes it left behind are counted as abandoned.
func runProcessor(lc fx.Lifecycle, p *ingest.Processor, q *queue.Queue, c *collector.Collector, shutdowner fx.Shutdowner, log *zap.Logger) {
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				// Storage calls outlive OnStart, so they get their own context.
				if err := p.Run(context.Background()); err != nil {
					log.Error("processor failed, initiating shutdown", zap.Error(err))
					n := q.Discard()
					c.Metrics().Abandon(n)
					log.Error("abandoned queued events", zap.Int("count", n))
					if shutdownErr := shutdowner.Shutdown(fx.ExitCode(1)); shutdownErr != nil {
						log.Error("failed to initiate shutdown", zap.Error(shutdownErr))
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			q.Close()
			select {
			case <-done:
				log.Info("processor drained", zap.Stringer("state", p.State()))
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func runRetention(lc fx.Lifecycle, cfg config.Config, store storage.Store, f *privacy.Filter, log *zap.Logger) error {
	if !cfg.Retention.Enabled {
		return nil
	}
	s, err := retention.New(store, f, cfg.Retention.Interval, log)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				_ = s.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
	return nil
}

