package worker

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Handler processes one item using the parameters the handle was built with.
type Handler[T, P any] func(params P, item T)

// Option configures a Single.
type Option func(*options)

type options struct {
	name    string
	onSpawn func()
	onPanic func(recovered any)
	onDrop  func()
}

// WithName sets the name used in log records.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithSpawnHook registers fn to run each time a consumer goroutine starts.
func WithSpawnHook(fn func()) Option {
	return func(o *options) { o.onSpawn = fn }
}

// WithPanicHook registers fn to run when the handler panics and the
// consumer goroutine terminates.
func WithPanicHook(fn func(recovered any)) Option {
	return func(o *options) { o.onPanic = fn }
}

// WithDropHook registers fn to run when Submit discards an item because the
// handle is closed.
func WithDropHook(fn func()) Option {
	return func(o *options) { o.onDrop = fn }
}

// Single runs a handler over submitted items on exactly one background
// goroutine at a time. Items are handled serially in submission order.
//
// If the consumer goroutine dies (the handler panicked), the next Submit
// spawns a replacement that continues with whatever is still queued. Only the
// item being handled when the panic occurred is lost.
//
// The queue is unbounded. Submit never blocks on the handler, so a slow
// handler lets the backlog grow without limit.
type Single[T, P any] struct {
	params  P
	handler Handler[T, P]
	queue   *queue[T]
	opts    options

	alive  atomic.Bool
	spawns atomic.Int64

	spawnMu sync.Mutex
	done    chan struct{} // closed when the current consumer exits; guarded by spawnMu

	closeOnce sync.Once
}

// New creates a Single and starts its first consumer. It returns once the
// consumer reports alive. New panics if handler is nil.
func New[T, P any](params P, handler Handler[T, P], opts ...Option) *Single[T, P] {
	if handler == nil {
		panic("worker: handler cannot be nil")
	}
	s := &Single[T, P]{
		params:  params,
		handler: handler,
		queue:   newQueue[T](),
		opts:    options{name: "single"},
	}
	for _, o := range opts {
		o(&s.opts)
	}
	s.ensureAlive()
	return s
}

// Name returns the worker identifier.
func (s *Single[T, P]) Name() string { return s.opts.name }

// Submit enqueues item for the background consumer, respawning the consumer
// first if none is alive. It never blocks on handler execution and gives no
// delivery confirmation. After Close, items are dropped.
func (s *Single[T, P]) Submit(item T) {
	s.Offer(item)
}

// Offer is Submit that reports whether item was queued. It returns false
// only when the handle has been closed, after running the drop hook.
func (s *Single[T, P]) Offer(item T) bool {
	if s.queue.isClosed() {
		s.drop()
		return false
	}
	if !s.alive.Load() {
		s.ensureAlive()
	}
	if !s.queue.push(item) {
		s.drop()
		return false
	}
	return true
}

// Alive reports whether a consumer goroutine is currently running.
func (s *Single[T, P]) Alive() bool { return s.alive.Load() }

// Len returns the number of items waiting to be handled.
func (s *Single[T, P]) Len() int { return s.queue.len() }

// Spawns returns how many consumer goroutines have been started, including
// the first one.
func (s *Single[T, P]) Spawns() int64 { return s.spawns.Load() }

// Close stops accepting items and waits until everything already queued has
// been handled or ctx is done. If the consumer dies while draining, a new
// one is spawned for the rest. Close is safe to call more than once.
func (s *Single[T, P]) Close(ctx context.Context) error {
	s.closeOnce.Do(s.queue.close)
	for {
		done := s.ensureAlive()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if s.queue.len() == 0 {
			return nil
		}
	}
}

// ensureAlive spawns a consumer if none is running and returns the done
// channel of the live one. The spawn decision is made under spawnMu with a
// second liveness check, so racing callers start at most one consumer.
func (s *Single[T, P]) ensureAlive() <-chan struct{} {
	s.spawnMu.Lock()
	defer s.spawnMu.Unlock()
	if s.alive.Load() {
		return s.done
	}

	started := make(chan struct{})
	done := make(chan struct{})
	s.done = done
	s.spawns.Add(1)
	go s.run(started, done)
	<-started

	if s.opts.onSpawn != nil {
		s.opts.onSpawn()
	}
	return done
}

// run is the consumer loop. Liveness is set before the first item is
// accepted and cleared on every exit path, panics included.
func (s *Single[T, P]) run(started, done chan<- struct{}) {
	s.alive.Store(true)
	defer func() {
		s.alive.Store(false)
		close(done)
	}()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("worker handler panicked, consumer stopped",
				"worker", s.opts.name,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			if s.opts.onPanic != nil {
				s.opts.onPanic(rec)
			}
		}
	}()
	close(started)

	for {
		item, ok := s.queue.pop()
		if !ok {
			slog.Debug("worker queue closed, consumer stopped", "worker", s.opts.name)
			return
		}
		s.handler(s.params, item)
	}
}

func (s *Single[T, P]) drop() {
	slog.Warn("worker item dropped, handle closed", "worker", s.opts.name)
	if s.opts.onDrop != nil {
		s.opts.onDrop()
	}
}
