package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eugener/beacon/internal/ratelimit"
	"github.com/eugener/beacon/internal/server"
	"github.com/eugener/beacon/internal/transport"
	"github.com/eugener/beacon/internal/worker"
)

func runServe(configPath string, explicit bool) error {
	cfg, err := loadConfig(configPath, explicit)
	if err != nil {
		return err
	}
	slog.Info("starting beacon", "version", version, "addr", cfg.Server.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	deps := server.Deps{
		Events:  a.client,
		Status:  a.client,
		Metrics: a.metrics,
	}
	if cfg.Telemetry.Metrics.Enabled {
		deps.MetricsHandler = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	}
	if a.store != nil {
		deps.Failures = a.store
		deps.ReadyCheck = a.store.Ping
	}
	var limiter *ratelimit.Registry
	if cfg.Server.RateLimit > 0 {
		limiter = ratelimit.NewRegistry(cfg.Server.RateLimit)
		deps.RateLimiter = limiter
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	workers := []worker.Worker{worker.Func{ID: "http_server", Fn: func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		slog.Info("beacon ready", "addr", cfg.Server.Addr)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}}}
	if a.store != nil {
		workers = append(workers, worker.NewJournalPruner(a.store, cfg.Journal.Retention, cfg.Journal.PruneInterval))
	}
	if a.resolver != nil {
		workers = append(workers, worker.Func{ID: "dns_refresh", Fn: func(ctx context.Context) error {
			transport.RefreshDNS(ctx, a.resolver, dnsRefreshInterval)
			return nil
		}})
	}

	if limiter != nil {
		workers = append(workers, worker.Func{ID: "ratelimit_evict", Fn: func(ctx context.Context) error {
			evictStaleLimiters(ctx, limiter)
			return nil
		}})
	}

	runErr := worker.NewRunner(workers...).Run(ctx)
	slog.Info("shutting down", "pending", a.client.Pending())
	a.drain()
	if runErr != nil {
		return runErr
	}
	slog.Info("beacon stopped")
	return nil
}

const limiterIdle = 10 * time.Minute

// evictStaleLimiters drops per-client buckets idle for limiterIdle. An idle
// bucket is full, so dropping it changes no decision.
func evictStaleLimiters(ctx context.Context, r *ratelimit.Registry) {
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.EvictStale(now.Add(-limiterIdle)); n > 0 {
				slog.Debug("evicted idle rate limiters", "count", n)
			}
		}
	}
}
