package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recorder collects handled items in order.
type recorder[T any] struct {
	mu   sync.Mutex
	seen []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.seen = append(r.seen, v)
	r.mu.Unlock()
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.seen)
}

func (r *recorder[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func closeOnCleanup[T, P any](t *testing.T, s *Single[T, P]) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Close(ctx); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
}

func TestSingle_AliveAfterNew(t *testing.T) {
	t.Parallel()
	s := New("p", func(string, int) {})
	closeOnCleanup(t, s)

	if !s.Alive() {
		t.Fatal("Alive() = false right after New")
	}
	if s.Spawns() != 1 {
		t.Errorf("Spawns() = %d, want 1", s.Spawns())
	}
	if s.Name() != "single" {
		t.Errorf("Name() = %q, want single", s.Name())
	}
}

func TestSingle_SharedParams(t *testing.T) {
	t.Parallel()
	rec := &recorder[string]{}
	s := New("cfg", func(p string, item int) {
		rec.add(fmt.Sprintf("%s:%d", p, item))
	})
	closeOnCleanup(t, s)

	s.Submit(1)
	s.Submit(2)
	s.Submit(3)

	waitUntil(t, "three items", func() bool { return rec.count() == 3 })
	want := []string{"cfg:1", "cfg:2", "cfg:3"}
	if got := rec.snapshot(); !slices.Equal(got, want) {
		t.Errorf("handled = %v, want %v", got, want)
	}
}

func TestSingle_PerProducerFIFO(t *testing.T) {
	t.Parallel()
	type item struct{ producer, seq int }
	rec := &recorder[item]{}
	s := New(struct{}{}, func(_ struct{}, it item) { rec.add(it) })
	closeOnCleanup(t, s)

	const producers, perProducer = 8, 200
	var wg sync.WaitGroup
	for p := range producers {
		wg.Go(func() {
			for i := range perProducer {
				s.Submit(item{producer: p, seq: i})
			}
		})
	}
	wg.Wait()

	waitUntil(t, "all items", func() bool { return rec.count() == producers*perProducer })
	next := make([]int, producers)
	for _, it := range rec.snapshot() {
		if it.seq != next[it.producer] {
			t.Fatalf("producer %d: got seq %d, want %d", it.producer, it.seq, next[it.producer])
		}
		next[it.producer]++
	}
}

func TestSingle_HandlerNeverConcurrent(t *testing.T) {
	t.Parallel()
	var inFlight, peak, handled atomic.Int32
	s := New(0, func(_ int, _ int) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Microsecond)
		inFlight.Add(-1)
		handled.Add(1)
	})
	closeOnCleanup(t, s)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			for i := range 20 {
				s.Submit(i)
			}
		})
	}
	wg.Wait()

	waitUntil(t, "all items", func() bool { return handled.Load() == 200 })
	if p := peak.Load(); p != 1 {
		t.Errorf("peak concurrent handlers = %d, want 1", p)
	}
}

func TestSingle_RespawnAfterPanic(t *testing.T) {
	t.Parallel()
	rec := &recorder[int]{}
	var panics atomic.Int32
	s := New("cfg", func(_ string, item int) {
		if item == 2 {
			panic("boom")
		}
		rec.add(item)
	}, WithPanicHook(func(any) { panics.Add(1) }))
	closeOnCleanup(t, s)

	s.Submit(1)
	s.Submit(2)
	s.Submit(3)
	waitUntil(t, "consumer to die", func() bool { return panics.Load() == 1 && !s.Alive() })

	s.Submit(4)
	waitUntil(t, "item 4", func() bool { return slices.Contains(rec.snapshot(), 4) })

	got := rec.snapshot()
	if want := []int{1, 3, 4}; !slices.Equal(got, want) {
		t.Errorf("handled = %v, want %v", got, want)
	}
	if s.Spawns() != 2 {
		t.Errorf("Spawns() = %d, want 2", s.Spawns())
	}
	if !s.Alive() {
		t.Error("Alive() = false after respawn")
	}
}

func TestSingle_ConcurrentRespawnSpawnsOnce(t *testing.T) {
	t.Parallel()
	var handled atomic.Int32
	var spawnHooks atomic.Int32
	s := New(0, func(_ int, item int) {
		if item < 0 {
			panic("kill")
		}
		handled.Add(1)
	}, WithSpawnHook(func() { spawnHooks.Add(1) }))
	closeOnCleanup(t, s)

	s.Submit(-1)
	waitUntil(t, "consumer to die", func() bool { return !s.Alive() })

	const producers, perProducer = 16, 50
	start := make(chan struct{})
	var wg sync.WaitGroup
	for range producers {
		wg.Go(func() {
			<-start
			for i := range perProducer {
				s.Submit(i)
			}
		})
	}
	close(start)
	wg.Wait()

	waitUntil(t, "all items", func() bool { return handled.Load() == producers*perProducer })
	if s.Spawns() != 2 {
		t.Errorf("Spawns() = %d, want 2", s.Spawns())
	}
	if spawnHooks.Load() != 2 {
		t.Errorf("spawn hook calls = %d, want 2", spawnHooks.Load())
	}
}

func TestSingle_QueuedItemsSurviveUntilNextSubmit(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	rec := &recorder[int]{}
	s := New(0, func(_ int, item int) {
		if item == 1 {
			<-gate
			panic("boom")
		}
		rec.add(item)
	})
	closeOnCleanup(t, s)

	s.Submit(1)
	s.Submit(2)
	s.Submit(3)
	close(gate)
	waitUntil(t, "consumer to die", func() bool { return !s.Alive() })

	// No consumer runs until something is submitted.
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 queued behind the failed item", s.Len())
	}

	s.Submit(4)
	waitUntil(t, "queue drained", func() bool { return rec.count() == 3 })
	if got, want := rec.snapshot(), []int{2, 3, 4}; !slices.Equal(got, want) {
		t.Errorf("handled = %v, want %v", got, want)
	}
}

func TestSingle_CloseDrains(t *testing.T) {
	t.Parallel()
	var handled atomic.Int32
	s := New(0, func(_ int, _ int) {
		time.Sleep(100 * time.Microsecond)
		handled.Add(1)
	})
	for i := range 100 {
		s.Submit(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if handled.Load() != 100 {
		t.Errorf("handled = %d, want 100", handled.Load())
	}
	if s.Alive() {
		t.Error("Alive() = true after Close")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestSingle_CloseRespawnsAfterPanic(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	rec := &recorder[int]{}
	s := New(0, func(_ int, item int) {
		if item == 1 {
			<-gate
			panic("boom")
		}
		rec.add(item)
	})
	s.Submit(1)
	s.Submit(2)
	s.Submit(3)

	errc := make(chan error, 1)
	go func() { errc <- s.Close(context.Background()) }()
	close(gate)

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	if got, want := rec.snapshot(), []int{2, 3}; !slices.Equal(got, want) {
		t.Errorf("handled = %v, want %v", got, want)
	}
}

func TestSingle_CloseHonoursContext(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	s := New(0, func(_ int, _ int) { <-gate })
	s.Submit(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close = %v, want DeadlineExceeded", err)
	}

	close(gate)
	if err := s.Close(context.Background()); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestSingle_SubmitAfterCloseDrops(t *testing.T) {
	t.Parallel()
	var handled, dropped atomic.Int32
	s := New(0, func(_ int, _ int) { handled.Add(1) },
		WithName("drops"),
		WithDropHook(func() { dropped.Add(1) }),
	)
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s.Submit(1)
	s.Submit(2)

	if dropped.Load() != 2 {
		t.Errorf("dropped = %d, want 2", dropped.Load())
	}
	if handled.Load() != 0 {
		t.Errorf("handled = %d, want 0", handled.Load())
	}
	if s.Alive() {
		t.Error("Submit after Close should not leave a consumer running")
	}
	if s.Name() != "drops" {
		t.Errorf("Name() = %q, want drops", s.Name())
	}
}

func TestSingle_OfferReportsAcceptance(t *testing.T) {
	t.Parallel()
	rec := &recorder[int]{}
	var dropped atomic.Int32
	s := New(0, func(_ int, v int) { rec.add(v) },
		WithDropHook(func() { dropped.Add(1) }),
	)

	if !s.Offer(1) {
		t.Fatal("Offer on an open handle reported false")
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.Offer(2) {
		t.Error("Offer after Close reported true")
	}
	if got := rec.snapshot(); !slices.Equal(got, []int{1}) {
		t.Errorf("handled = %v, want [1]", got)
	}
	if dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", dropped.Load())
	}
}

func TestSingle_NilHandlerPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Error("New with nil handler did not panic")
		}
	}()
	New[int, int](0, nil)
}
