// Package circuitbreaker short-circuits deliveries to a tracking endpoint
// that keeps failing. While a breaker is open, events for that endpoint are
// dropped immediately instead of each one waiting out a network timeout on
// the single delivery worker.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed lets every delivery through.
	StateClosed State = iota
	// StateOpen rejects deliveries until OpenTimeout elapses.
	StateOpen
	// StateHalfOpen lets one probe delivery through.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	ErrorThreshold float64       // weighted error rate to trip (e.g. 0.50)
	MinSamples     int           // minimum deliveries before the breaker can open
	WindowSeconds  int           // sliding window duration in seconds, at most 60
	OpenTimeout    time.Duration // time in OPEN before a probe is allowed
}

// DefaultConfig returns defaults suited to low-volume telemetry traffic.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 0.50,
		MinSamples:     5,
		WindowSeconds:  60,
		OpenTimeout:    30 * time.Second,
	}
}

type bucket struct {
	errors float64 // weighted error sum
	total  int
}

// window is a ring of 1-second buckets.
type window struct {
	buckets  [60]bucket
	size     int
	head     int
	headTime int64 // unix seconds of head bucket
}

func newWindow(seconds int) window {
	if seconds <= 0 || seconds > 60 {
		seconds = 60
	}
	return window{size: seconds}
}

// advance moves head to nowSec, clearing buckets that fell out of the window.
func (w *window) advance(nowSec int64) {
	if w.headTime == 0 {
		w.headTime = nowSec
		return
	}
	gap := nowSec - w.headTime
	if gap <= 0 {
		return
	}
	for i := range min(int(gap), w.size) {
		w.buckets[(w.head+1+i)%w.size] = bucket{}
	}
	w.head = (w.head + int(gap)) % w.size
	w.headTime = nowSec
}

func (w *window) record(weight float64, now time.Time) {
	w.advance(now.Unix())
	w.buckets[w.head].total++
	w.buckets[w.head].errors += weight
}

// rate returns the weighted error rate and sample count across the window.
func (w *window) rate(now time.Time) (float64, int) {
	w.advance(now.Unix())
	var errs float64
	var total int
	for i := range w.size {
		errs += w.buckets[i].errors
		total += w.buckets[i].total
	}
	if total == 0 {
		return 0, 0
	}
	return errs / float64(total), total
}

func (w *window) reset() {
	*w = newWindow(w.size)
}

// Breaker is a circuit breaker for one destination.
type Breaker struct {
	mu          sync.Mutex
	state       State
	win         window
	openedAt    time.Time
	probing     bool
	threshold   float64
	minSamples  int
	openTimeout time.Duration
	now         func() time.Time
}

// NewBreaker creates a closed breaker with the given config.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{
		state:       StateClosed,
		win:         newWindow(cfg.WindowSeconds),
		threshold:   cfg.ErrorThreshold,
		minSamples:  cfg.MinSamples,
		openTimeout: cfg.OpenTimeout,
		now:         time.Now,
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a delivery may proceed. An open breaker whose
// timeout has elapsed moves to half-open and admits exactly one probe.
func (b *Breaker) Allow() bool {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) < b.openTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Record feeds a delivery outcome into the breaker. err is classified with
// ClassifyError; nil and zero-weight errors count as successes.
func (b *Breaker) Record(err error) {
	if w := ClassifyError(err); w > 0 {
		b.recordError(w)
		return
	}
	b.recordSuccess()
}

func (b *Breaker) recordSuccess() {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.win.record(0, now)
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.probing = false
		b.win.reset()
	}
}

func (b *Breaker) recordError(weight float64) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.win.record(weight, now)

	switch b.state {
	case StateClosed:
		rate, samples := b.win.rate(now)
		if samples >= b.minSamples && rate >= b.threshold {
			b.state = StateOpen
			b.openedAt = now
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = now
		b.probing = false
	}
}
