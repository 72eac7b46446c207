package circuitbreaker

import (
	"context"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) now() time.Time      { return c.t }
func (c *fakeClock) add(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config, c *fakeClock) *Breaker {
	b := NewBreaker(cfg)
	b.now = c.now
	return b
}

var errUpstream = &statusError{503}

func TestWindow_Rate(t *testing.T) {
	t.Parallel()

	w := newWindow(60)
	now := time.Now()
	for range 7 {
		w.record(0, now)
	}
	for range 3 {
		w.record(1.0, now)
	}

	rate, samples := w.rate(now)
	if samples != 10 {
		t.Fatalf("samples = %d, want 10", samples)
	}
	if rate < 0.29 || rate > 0.31 {
		t.Fatalf("rate = %f, want ~0.30", rate)
	}
}

func TestWindow_Expiry(t *testing.T) {
	t.Parallel()

	w := newWindow(5)
	base := time.Now()
	w.record(1.0, base)

	rate, samples := w.rate(base.Add(6 * time.Second))
	if samples != 0 || rate != 0 {
		t.Fatalf("after expiry: samples=%d rate=%f, want 0/0", samples, rate)
	}
}

func TestWindow_InvalidSize(t *testing.T) {
	t.Parallel()

	for _, in := range []int{0, -1, 100} {
		if w := newWindow(in); w.size != 60 {
			t.Errorf("newWindow(%d).size = %d, want 60", in, w.size)
		}
	}
}

func TestBreaker_OpensOnThreshold(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	b := newTestBreaker(Config{ErrorThreshold: 0.5, MinSamples: 4, WindowSeconds: 60, OpenTimeout: time.Minute}, clk)

	b.Record(nil)
	b.Record(nil)
	b.Record(errUpstream)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed below min samples", b.State())
	}
	b.Record(errUpstream)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if b.Allow() {
		t.Fatal("open breaker should reject")
	}
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(Config{ErrorThreshold: 0.3, MinSamples: 2, WindowSeconds: 60, OpenTimeout: time.Minute}, newFakeClock())
	for range 10 {
		b.Record(&statusError{400})
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed for 4xx", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		probe error
		want  State
	}{
		{"probe success closes", nil, StateClosed},
		{"probe failure reopens", errUpstream, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clk := newFakeClock()
			b := newTestBreaker(Config{ErrorThreshold: 0.5, MinSamples: 2, WindowSeconds: 60, OpenTimeout: 10 * time.Second}, clk)
			b.Record(errUpstream)
			b.Record(errUpstream)
			if b.State() != StateOpen {
				t.Fatalf("state = %v, want open", b.State())
			}

			clk.add(11 * time.Second)
			if !b.Allow() {
				t.Fatal("should allow probe after open timeout")
			}
			if b.State() != StateHalfOpen {
				t.Fatalf("state = %v, want half_open", b.State())
			}
			if b.Allow() {
				t.Fatal("should reject while probe in flight")
			}

			b.Record(tt.probe)
			if b.State() != tt.want {
				t.Fatalf("state = %v, want %v", b.State(), tt.want)
			}
		})
	}
}

func TestBreaker_ClosedAllows(t *testing.T) {
	t.Parallel()

	b := NewBreaker(DefaultConfig())
	for range 10 {
		if !b.Allow() {
			t.Fatal("closed breaker should allow")
		}
		b.Record(nil)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_WeightedErrors(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(Config{ErrorThreshold: 0.3, MinSamples: 10, WindowSeconds: 60, OpenTimeout: time.Minute}, newFakeClock())

	// 4 throttled of 10 weigh 2.0, a 20% rate.
	for range 6 {
		b.Record(nil)
	}
	for range 4 {
		b.Record(&statusError{429})
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed at 20%%", b.State())
	}

	// Two timeouts add 3.0: 5.0 / 12 is about 42%.
	for range 2 {
		b.Record(context.DeadlineExceeded)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
}

func TestBreaker_OldErrorsLeaveWindow(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	b := newTestBreaker(Config{ErrorThreshold: 0.5, MinSamples: 2, WindowSeconds: 10, OpenTimeout: time.Minute}, clk)
	b.Record(errUpstream)

	clk.add(11 * time.Second)
	b.Record(errUpstream)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed; the first error is outside the window", b.State())
	}
	b.Record(errUpstream)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
}

func TestBreaker_CanceledDeliveriesDoNotTrip(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(Config{ErrorThreshold: 0.1, MinSamples: 1, WindowSeconds: 60, OpenTimeout: time.Minute}, newFakeClock())
	for range 5 {
		b.Record(context.Canceled)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	b := NewBreaker(Config{ErrorThreshold: 0.5, MinSamples: 100, WindowSeconds: 60, OpenTimeout: time.Millisecond})
	done := make(chan struct{})
	for range 10 {
		go func() {
			for range 100 {
				b.Allow()
				b.Record(nil)
				b.Record(errUpstream)
				_ = b.State()
			}
			done <- struct{}{}
		}()
	}
	for range 10 {
		<-done
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
