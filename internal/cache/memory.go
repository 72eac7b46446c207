package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
)

// entry records when a key was first seen.
type entry struct {
	seenAt time.Time
}

// Memory is an in-memory W-TinyLFU window backed by otter. Keys expire ttl
// after they were first recorded; when full, the least valuable keys are
// evicted early.
type Memory struct {
	mu    sync.Mutex // makes Seen's check-and-set atomic
	cache *otter.Cache[string, entry]
	ttl   time.Duration
}

// NewMemory creates a window holding at most maxSize keys for ttl each.
func NewMemory(maxSize int, ttl time.Duration) (*Memory, error) {
	c, err := otter.New[string, entry](&otter.Options[string, entry]{
		MaximumSize:      maxSize,
		ExpiryCalculator: otter.ExpiryWriting[string, entry](ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &Memory{cache: c, ttl: ttl}, nil
}

// Seen records key and reports whether it was recorded within the last ttl.
func (m *Memory) Seen(_ context.Context, key string) bool {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.cache.GetIfPresent(key); ok && now.Sub(e.seenAt) < m.ttl {
		return true
	}
	m.cache.Set(key, entry{seenAt: now})
	return false
}

// Forget removes key from the window.
func (m *Memory) Forget(_ context.Context, key string) {
	m.cache.Invalidate(key)
}
