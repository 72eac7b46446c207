// Package storage defines persistence interfaces for beacon.
package storage

import (
	"context"
	"time"

	beacon "github.com/eugener/beacon/internal"
)

// FailureStore persists failed deliveries for later inspection.
type FailureStore interface {
	InsertFailure(ctx context.Context, f *beacon.Failure) error
	ListFailures(ctx context.Context, filter beacon.FailureFilter) ([]beacon.Failure, error)
	CountFailures(ctx context.Context, filter beacon.FailureFilter) (int, error)
	DeleteFailuresBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store combines all storage interfaces.
type Store interface {
	FailureStore
	Ping(ctx context.Context) error
	Close() error
}
