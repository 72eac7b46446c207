// Package analytics is the tracking API client. Calls validate and encode an
// event, then hand it to a single background worker that POSTs it to the
// tracking endpoint. Callers never wait on, or learn about, delivery.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	beacon "github.com/eugener/beacon/internal"
	"github.com/eugener/beacon/internal/cache"
	"github.com/eugener/beacon/internal/circuitbreaker"
	"github.com/eugener/beacon/internal/telemetry"
	"github.com/eugener/beacon/internal/transport"
	"github.com/eugener/beacon/internal/worker"
)

const (
	// DefaultEndpoint is the tracking API base URL.
	DefaultEndpoint = "https://api.segment.io/v1"
	defaultTimeout  = 5 * time.Second
)

// Config holds client settings.
type Config struct {
	WriteKey string
	Endpoint string        // base URL; "" = DefaultEndpoint
	Timeout  time.Duration // per delivery; 0 = 5s
	// Disabled skips every delivery. It is forced on when WriteKey is empty
	// and no HTTP client is supplied.
	Disabled bool
}

// FailureSink records deliveries that did not succeed.
type FailureSink interface {
	InsertFailure(ctx context.Context, f *beacon.Failure) error
}

// Deps holds optional collaborators. Nil fields fall back to defaults or
// disable the feature.
type Deps struct {
	HTTPClient *http.Client             // nil = Basic auth with the write key
	Metrics    *telemetry.Metrics       // nil = unregistered collectors
	Breakers   *circuitbreaker.Registry // nil = no circuit breaking
	Dedupe     cache.Window             // nil = no duplicate suppression
	Failures   FailureSink              // nil = failures are only logged
	Tracer     trace.Tracer             // nil = global tracer
}

// Client enqueues tracking calls for background delivery.
type Client struct {
	endpoint string
	metrics  *telemetry.Metrics
	dedupe   cache.Window
	breakers *circuitbreaker.Registry
	worker   *worker.Single[beacon.Payload, *deliverer]
	closed   atomic.Bool
	now      func() time.Time
}

// New creates a Client and starts its delivery worker.
func New(cfg Config, deps Deps) (*Client, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if u, err := url.Parse(endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("analytics: invalid endpoint %q", cfg.Endpoint)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer("github.com/eugener/beacon/internal/analytics")
	}

	disabled := cfg.Disabled
	httpClient := deps.HTTPClient
	if httpClient == nil {
		if cfg.WriteKey == "" {
			disabled = true
		}
		httpClient = transport.NewClient(&transport.BasicAuthTransport{
			Username: cfg.WriteKey,
			Base:     transport.NewTransport(nil),
		}, 0)
	}
	if disabled {
		slog.Info("analytics client disabled, events will not be delivered")
	}

	d := &deliverer{
		http:     httpClient,
		timeout:  timeout,
		disabled: disabled,
		metrics:  metrics,
		breakers: deps.Breakers,
		failures: deps.Failures,
		dedupe:   deps.Dedupe,
		tracer:   tracer,
	}

	c := &Client{
		endpoint: endpoint,
		metrics:  metrics,
		dedupe:   deps.Dedupe,
		breakers: deps.Breakers,
		now:      time.Now,
	}
	c.worker = worker.New(d, (*deliverer).deliver,
		worker.WithName("analytics"),
		worker.WithSpawnHook(metrics.WorkerSpawns.Inc),
		worker.WithPanicHook(func(any) { metrics.WorkerPanics.Inc() }),
		worker.WithDropHook(func() {
			metrics.EventsDropped.Inc()
			metrics.QueueLength.Dec()
		}),
	)
	return c, nil
}

// Alias links PreviousID to UserID.
func (c *Client) Alias(ctx context.Context, ev beacon.Alias) error {
	if err := validateAlias(ev); err != nil {
		return err
	}
	h, explicit := newHeader(beacon.TypeAlias, ev.Common, c.now())
	return c.enqueue(ctx, h, explicit, aliasMessage{
		header:     h,
		PreviousID: ev.PreviousID,
		UserID:     ev.UserID,
	})
}

// Identify records who a user is.
func (c *Client) Identify(ctx context.Context, ev beacon.Identify) error {
	if err := validateIdentify(ev); err != nil {
		return err
	}
	h, explicit := newHeader(beacon.TypeIdentify, ev.Common, c.now())
	return c.enqueue(ctx, h, explicit, identifyMessage{
		header:      h,
		AnonymousID: ev.AnonymousID,
		UserID:      ev.UserID,
		Traits:      ev.Traits,
	})
}

// Track records an action a user performed.
func (c *Client) Track(ctx context.Context, ev beacon.Track) error {
	if err := validateTrack(ev); err != nil {
		return err
	}
	h, explicit := newHeader(beacon.TypeTrack, ev.Common, c.now())
	return c.enqueue(ctx, h, explicit, trackMessage{
		header:      h,
		AnonymousID: ev.AnonymousID,
		UserID:      ev.UserID,
		Event:       ev.Event,
		Properties:  ev.Properties,
	})
}

func (c *Client) enqueue(ctx context.Context, h header, explicit bool, msg any) error {
	if c.closed.Load() {
		return beacon.ErrClosed
	}
	// Only encodable events enter the dedupe window.
	body, err := encode(msg)
	if err != nil {
		return err
	}
	if explicit && c.dedupe != nil && c.dedupe.Seen(ctx, h.MessageID) {
		c.metrics.EventsDeduplicated.WithLabelValues(string(h.Type)).Inc()
		slog.LogAttrs(ctx, slog.LevelDebug, "duplicate event dropped",
			slog.String("type", string(h.Type)),
			slog.String("message_id", h.MessageID),
		)
		return nil
	}

	c.metrics.QueueLength.Inc()
	queued := c.worker.Offer(beacon.Payload{
		Type:       h.Type,
		MessageID:  h.MessageID,
		Endpoint:   c.endpoint + "/" + string(h.Type),
		Body:       body,
		EnqueuedAt: c.now(),
	})
	if !queued {
		// Close won the race after the check above.
		if explicit && c.dedupe != nil {
			c.dedupe.Forget(ctx, h.MessageID)
		}
		return beacon.ErrClosed
	}
	c.metrics.EventsSubmitted.WithLabelValues(string(h.Type)).Inc()
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to end. Later calls return ErrClosed.
func (c *Client) Close(ctx context.Context) error {
	c.closed.Store(true)
	return c.worker.Close(ctx)
}

// Pending returns the number of events waiting for delivery.
func (c *Client) Pending() int { return c.worker.Len() }

// Alive reports whether the delivery worker is running.
func (c *Client) Alive() bool { return c.worker.Alive() }

// Status is a point-in-time view of the delivery pipeline.
type Status struct {
	Alive    bool              `json:"alive"`
	Pending  int               `json:"pending"`
	Spawns   int64             `json:"spawns"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

// Status reports worker liveness, backlog, and circuit breaker states.
func (c *Client) Status() Status {
	st := Status{
		Alive:   c.worker.Alive(),
		Pending: c.worker.Len(),
		Spawns:  c.worker.Spawns(),
	}
	if c.breakers != nil {
		states := c.breakers.States()
		st.Breakers = make(map[string]string, len(states))
		for dest, s := range states {
			st.Breakers[dest] = s.String()
		}
	}
	return st
}
