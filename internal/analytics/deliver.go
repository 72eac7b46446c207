package analytics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	beacon "github.com/eugener/beacon/internal"
	"github.com/eugener/beacon/internal/cache"
	"github.com/eugener/beacon/internal/circuitbreaker"
	"github.com/eugener/beacon/internal/telemetry"
	"github.com/eugener/beacon/internal/transport"
)

const maxResponseBody = 64 << 10

// deliverer holds everything the worker needs to POST one payload. It is
// shared by every worker spawn and never mutated after construction.
type deliverer struct {
	http     *http.Client
	timeout  time.Duration
	disabled bool
	metrics  *telemetry.Metrics
	breakers *circuitbreaker.Registry
	failures FailureSink
	dedupe   cache.Window
	tracer   trace.Tracer
}

// deliver sends p and records the outcome. Errors stop here.
func (d *deliverer) deliver(p beacon.Payload) {
	d.metrics.QueueLength.Dec()
	typ := string(p.Type)

	if d.disabled {
		d.metrics.DeliveriesTotal.WithLabelValues(typ, telemetry.OutcomeSkipped).Inc()
		slog.Debug("delivery skipped, client disabled", "type", typ, "message_id", p.MessageID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	ctx, span := d.tracer.Start(ctx, "analytics.deliver",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("beacon.type", typ),
			attribute.String("beacon.message_id", p.MessageID),
			attribute.String("http.url", p.Endpoint),
		),
	)
	defer span.End()

	var br *circuitbreaker.Breaker
	if d.breakers != nil {
		br = d.breakers.For(p.Endpoint)
		if !br.Allow() {
			d.metrics.DeliveriesTotal.WithLabelValues(typ, telemetry.OutcomeBreakerOpen).Inc()
			span.SetStatus(codes.Error, "circuit breaker open")
			d.fail(ctx, p, 0, beacon.ErrBreakerOpen)
			return
		}
	}

	start := time.Now()
	status, err := d.post(ctx, p)
	d.metrics.DeliveryDuration.WithLabelValues(typ).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", status))

	if br != nil {
		// A rejected payload says nothing about endpoint health.
		if errors.Is(err, beacon.ErrRejected) {
			br.Record(nil)
		} else {
			br.Record(err)
		}
	}

	if err == nil {
		d.metrics.DeliveriesTotal.WithLabelValues(typ, telemetry.OutcomeOK).Inc()
		slog.LogAttrs(ctx, slog.LevelDebug, "event delivered",
			slog.String("type", typ),
			slog.String("message_id", p.MessageID),
			slog.Duration("queued", start.Sub(p.EnqueuedAt)),
		)
		return
	}

	d.metrics.DeliveriesTotal.WithLabelValues(typ, outcome(err)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	d.fail(ctx, p, status, err)
}

// post performs the HTTP call. status is 0 when no response was received.
func (d *deliverer) post(ctx context.Context, p beacon.Payload) (int, error) {
	body := withSentAt(p.Body, time.Now())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("analytics: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := d.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("analytics: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, transport.ParseAPIError(p.Endpoint, resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("analytics: read response: %w", err)
	}
	if ok := gjson.GetBytes(raw, "success"); ok.Exists() && !ok.Bool() {
		return resp.StatusCode, fmt.Errorf("analytics: %w: %s", beacon.ErrRejected, raw)
	}
	return resp.StatusCode, nil
}

// fail logs a failed delivery and records it to the failure sink. The
// message ID leaves the dedupe window so the caller may resubmit it.
func (d *deliverer) fail(ctx context.Context, p beacon.Payload, status int, err error) {
	slog.LogAttrs(ctx, slog.LevelError, "event delivery failed",
		slog.String("type", string(p.Type)),
		slog.String("message_id", p.MessageID),
		slog.String("endpoint", p.Endpoint),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	if d.dedupe != nil {
		d.dedupe.Forget(ctx, p.MessageID)
	}
	if d.failures == nil {
		return
	}
	// The delivery context may already be spent; give the journal its own.
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if serr := d.failures.InsertFailure(sinkCtx, &beacon.Failure{
		MessageID:  p.MessageID,
		Type:       p.Type,
		Endpoint:   p.Endpoint,
		StatusCode: status,
		Error:      err.Error(),
		Body:       string(p.Body),
	}); serr != nil {
		slog.LogAttrs(ctx, slog.LevelError, "failure journal insert failed",
			slog.String("message_id", p.MessageID),
			slog.String("error", serr.Error()),
		)
	}
}

func outcome(err error) string {
	if errors.Is(err, beacon.ErrRejected) {
		return telemetry.OutcomeRejected
	}
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
		return telemetry.OutcomeRejected
	}
	return telemetry.OutcomeError
}
