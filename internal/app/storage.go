package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"example.com/analytics/internal/config"
	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/storage"
	"example.com/analytics/internal/storage/memory"
	"example.com/analytics/internal/storage/mongo"
	"example.com/analytics/internal/storage/postgres"
	"example.com/analytics/internal/storage/sqlite"
)

type closeFunc func(ctx context.Context) error

// OpenStore connects the configured storage driver. Network drivers are
// retried with exponential backoff up to storage.connect_retries times.
func OpenStore(ctx context.Context, cfg config.Storage, log *zap.Logger) (storage.Store, closeFunc, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Driver {
	case "memory":
		return memory.New(), noop, nil

	case "sqlite":
		s, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: sqlite: %w", domain.ErrStorage, err)
		}
		return s, func(context.Context) error { return s.Close() }, nil

	case "postgres":
		var db *postgres.DB
		err := retry(ctx, cfg.ConnectRetries, log, func() (err error) {
			db, err = postgres.Connect(ctx, cfg.Postgres)
			return err
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: postgres: %w", domain.ErrStorage, err)
		}
		if cfg.Postgres.Migration != "" {
			if err := db.RunMigration(ctx, cfg.Postgres.Migration); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("%w: postgres migration: %w", domain.ErrStorage, err)
			}
			log.Info("db: migration applied", zap.String("path", cfg.Postgres.Migration))
		}
		return postgres.NewStore(db), func(context.Context) error { db.Close(); return nil }, nil

	case "mongo":
		var s *mongo.Store
		err := retry(ctx, cfg.ConnectRetries, log, func() (err error) {
			s, err = mongo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
			return err
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: mongo: %w", domain.ErrStorage, err)
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown storage driver %q", domain.ErrConfiguration, cfg.Driver)
}

func retry(ctx context.Context, retries uint64, log *zap.Logger, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		log.Warn("storage not reachable, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
}

func provideStore(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (storage.Store, error) {
	store, closeStore, err := OpenStore(context.Background(), cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", zap.String("driver", cfg.Storage.Driver))
	lc.Append(fx.StopHook(closeStore))
	return store, nil
}
