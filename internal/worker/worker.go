// Package worker provides the single-consumer background worker used for
// event delivery, plus supervision for long-running periodic tasks.
package worker

import "context"

// Worker is a long-running background task.
type Worker interface {
	// Run blocks until ctx is cancelled or an unrecoverable error occurs.
	Run(ctx context.Context) error
}

// Func adapts a named function to the Worker interface.
type Func struct {
	ID string
	Fn func(ctx context.Context) error
}

// Name returns the worker identifier.
func (f Func) Name() string { return f.ID }

// Run calls Fn.
func (f Func) Run(ctx context.Context) error { return f.Fn(ctx) }
