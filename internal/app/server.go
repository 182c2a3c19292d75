package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"example.com/analytics/internal/cache"
	"example.com/analytics/internal/collector"
	"example.com/analytics/internal/config"
	"example.com/analytics/internal/storage"
	transport "example.com/analytics/internal/transport/http"
)

func provideHandler(cfg config.Config, c *collector.Collector, store storage.Store, counter *cache.Counter, log *zap.Logger) http.Handler {
	deps := &transport.ServerDeps{
		Cfg:       cfg.Server,
		Collector: c,
		Events:    store,
		Ready:     store,
		Log:       log.With(zap.String("component", "http")),
		Now:       func() time.Time { return time.Now().UTC() },
	}
	if counter != nil {
		deps.Realtime = counter
	}
	return deps.Router()
}

// startHTTPServer binds in OnStart so a taken port fails the start.
func startHTTPServer(lc fx.Lifecycle, cfg config.Config, handler http.Handler, shutdowner fx.Shutdowner, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("HTTP server failed, shutting down application", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			c, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(c)
		},
	})
}
