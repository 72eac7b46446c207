// Package telemetry provides observability primitives for beacon.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Delivery outcomes used as the "outcome" label.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"        // transport failure or 5xx
	OutcomeRejected    = "rejected"     // 4xx or success=false
	OutcomeBreakerOpen = "breaker_open" // dropped without a request
	OutcomeSkipped     = "skipped"      // client disabled
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	ActiveRequests     prometheus.Gauge
	EventsSubmitted    *prometheus.CounterVec
	EventsDeduplicated *prometheus.CounterVec
	EventsDropped      prometheus.Counter
	DeliveriesTotal    *prometheus.CounterVec
	DeliveryDuration   *prometheus.HistogramVec
	WorkerSpawns       prometheus.Counter
	WorkerPanics       prometheus.Counter
	QueueLength        prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "requests_total",
			Help:      "Total number of relay HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "beacon",
			Name:                            "request_duration_seconds",
			Help:                            "Relay HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "beacon",
			Name:      "active_requests",
			Help:      "Number of relay requests in flight.",
		}),

		EventsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "events_submitted_total",
			Help:      "Events handed to the delivery worker.",
		}, []string{"type"}),

		EventsDeduplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "events_deduplicated_total",
			Help:      "Events dropped because their message ID was seen recently.",
		}, []string{"type"}),

		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "events_dropped_total",
			Help:      "Events submitted after the client was closed.",
		}),

		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by event type and outcome.",
		}, []string{"type", "outcome"}),

		DeliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "beacon",
			Name:                            "delivery_duration_seconds",
			Help:                            "Tracking endpoint call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"type"}),

		WorkerSpawns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "worker_spawns_total",
			Help:      "Delivery worker goroutines started, including the first.",
		}),

		WorkerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "worker_panics_total",
			Help:      "Delivery worker goroutines terminated by a handler panic.",
		}),

		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "beacon",
			Name:      "queue_length",
			Help:      "Events waiting for the delivery worker.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.EventsSubmitted,
		m.EventsDeduplicated,
		m.EventsDropped,
		m.DeliveriesTotal,
		m.DeliveryDuration,
		m.WorkerSpawns,
		m.WorkerPanics,
		m.QueueLength,
	)

	return m
}
