package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/dnscache"

	"github.com/eugener/beacon/internal/analytics"
	"github.com/eugener/beacon/internal/cache"
	"github.com/eugener/beacon/internal/circuitbreaker"
	"github.com/eugener/beacon/internal/config"
	"github.com/eugener/beacon/internal/storage/sqlite"
	"github.com/eugener/beacon/internal/telemetry"
	"github.com/eugener/beacon/internal/transport"
)

const dnsRefreshInterval = 5 * time.Minute

// loadConfig loads path. A missing default config file falls back to
// built-in defaults; a missing explicit one is an error.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		return config.Parse(nil)
	}
	return cfg, err
}

// app holds the wired components shared by all commands.
type app struct {
	cfg      *config.Config
	client   *analytics.Client
	store    *sqlite.Store // nil when the journal is disabled
	resolver *dnscache.Resolver
	registry *prometheus.Registry
	metrics  *telemetry.Metrics

	shutdownTracing func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = telemetry.NewMetrics(a.registry)

	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return nil, err
		}
		a.shutdownTracing = shutdown
	}

	if cfg.Journal.Enabled {
		store, err := sqlite.New(cfg.Journal.DSN)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("open failure journal: %w", err)
		}
		a.store = store
	}

	if cfg.Client.DNSCache {
		a.resolver = &dnscache.Resolver{}
	}
	httpClient, err := newHTTPClient(ctx, cfg.Client, a.resolver)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	deps := analytics.Deps{
		HTTPClient: httpClient,
		Metrics:    a.metrics,
	}
	if a.store != nil {
		deps.Failures = a.store
	}
	if b := cfg.Client.Breaker; b.Enabled {
		deps.Breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{
			ErrorThreshold: b.ErrorThreshold,
			MinSamples:     b.MinSamples,
			WindowSeconds:  b.WindowSeconds,
			OpenTimeout:    b.OpenTimeout,
		})
	}
	if d := cfg.Client.Dedupe; d.Enabled {
		window, err := cache.NewMemory(d.MaxSize, d.TTL)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		deps.Dedupe = window
	}

	a.client, err = analytics.New(analytics.Config{
		WriteKey: cfg.Client.WriteKey,
		Endpoint: cfg.Client.Endpoint,
		Timeout:  cfg.Client.Timeout,
		Disabled: cfg.Client.Disabled(),
	}, deps)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// newHTTPClient builds the outbound client: pooled transport, optional DNS
// cache, and the configured auth RoundTripper.
func newHTTPClient(ctx context.Context, cc config.ClientConfig, resolver *dnscache.Resolver) (*http.Client, error) {
	base := transport.NewTransport(resolver)
	switch cc.ResolvedAuthType() {
	case "oauth":
		rt, err := transport.NewOAuthTransport(ctx, base, transport.OAuthConfig{
			TokenURL:     cc.Auth.TokenURL,
			ClientID:     cc.Auth.ClientID,
			ClientSecret: cc.Auth.ClientSecret,
			Scopes:       cc.Auth.Scopes,
		})
		if err != nil {
			return nil, err
		}
		return transport.NewClient(rt, 0), nil
	default:
		return transport.NewClient(&transport.BasicAuthTransport{
			Username: cc.WriteKey,
			Base:     base,
		}, 0), nil
	}
}

// drain flushes queued events within the shutdown timeout.
func (a *app) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.client.Close(ctx); err != nil {
		slog.Warn("event queue not fully drained", "pending", a.client.Pending(), "error", err)
	}
}

// close releases the journal and tracing exporter. Safe on a partly built app.
func (a *app) close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Error("close failure journal", "error", err)
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			slog.Error("shutdown tracing", "error", err)
		}
	}
}
