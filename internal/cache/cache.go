// Package cache provides the recently-seen window used to drop duplicate
// events before they reach the delivery queue.
package cache

import "context"

// Window remembers keys for a bounded time.
type Window interface {
	// Seen records key and reports whether it was already present.
	Seen(ctx context.Context, key string) bool
	// Forget removes key.
	Forget(ctx context.Context, key string)
}
