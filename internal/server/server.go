// Package server implements the HTTP relay in front of the analytics client.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	beacon "github.com/eugener/beacon/internal"
	"github.com/eugener/beacon/internal/analytics"
	"github.com/eugener/beacon/internal/ratelimit"
	"github.com/eugener/beacon/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// FailureLister reads the failure journal.
type FailureLister interface {
	ListFailures(ctx context.Context, f beacon.FailureFilter) ([]beacon.Failure, error)
	CountFailures(ctx context.Context, f beacon.FailureFilter) (int, error)
}

// StatusReporter describes the delivery pipeline.
type StatusReporter interface {
	Status() analytics.Status
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Events         analytics.Sink
	Status         StatusReporter      // nil = no /v1/status route
	Failures       FailureLister       // nil = journal disabled
	ReadyCheck     ReadyChecker        // nil = always ready (for tests)
	Metrics        *telemetry.Metrics  // nil = no request metrics
	MetricsHandler http.Handler        // nil = no /metrics route
	RateLimiter    *ratelimit.Registry // nil = no rate limiting
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Tracking API relay
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/alias", s.handleAlias)
			r.Post("/identify", s.handleIdentify)
			r.Post("/track", s.handleTrack)
			r.Post("/events", s.handleEvent)
		})
		// Batches are charged per event once the body is parsed.
		r.Post("/batch", s.handleBatch)
		r.Get("/failures", s.handleListFailures)
		if deps.Status != nil {
			r.Get("/status", s.handleStatus)
		}
	})

	return r
}

type server struct {
	deps Deps
}
