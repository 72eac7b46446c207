package testutil

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	beacon "github.com/eugener/beacon/internal"
	"github.com/eugener/beacon/internal/storage"
)

var _ storage.FailureStore = (*FakeFailureStore)(nil)

// FakeFailureStore is an in-memory storage.FailureStore.
type FakeFailureStore struct {
	mu         sync.Mutex
	rows       []beacon.Failure
	lastFilter beacon.FailureFilter
	nextID     int
}

// InsertFailure stores a copy of f, assigning ID and CreatedAt when empty.
func (s *FakeFailureStore) InsertFailure(_ context.Context, f *beacon.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		s.nextID++
		f.ID = "f" + strconv.Itoa(s.nextID)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	s.rows = append(s.rows, *f)
	return nil
}

// ListFailures returns matching rows, newest first.
func (s *FakeFailureStore) ListFailures(_ context.Context, f beacon.FailureFilter) ([]beacon.Failure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	out := s.match(f)
	slices.SortStableFunc(out, func(a, b beacon.Failure) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	start := min(f.Offset, len(out))
	end := len(out)
	if f.Limit > 0 {
		end = min(start+f.Limit, len(out))
	}
	return out[start:end], nil
}

// CountFailures returns the number of matching rows.
func (s *FakeFailureStore) CountFailures(_ context.Context, f beacon.FailureFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.match(f)), nil
}

// DeleteFailuresBefore removes rows created before cutoff.
func (s *FakeFailureStore) DeleteFailuresBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.rows)
	s.rows = slices.DeleteFunc(s.rows, func(r beacon.Failure) bool {
		return r.CreatedAt.Before(cutoff)
	})
	return int64(before - len(s.rows)), nil
}

// Rows returns a copy of all stored rows in insertion order.
func (s *FakeFailureStore) Rows() []beacon.Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows)
}

// LastFilter returns the filter passed to the most recent ListFailures.
func (s *FakeFailureStore) LastFilter() beacon.FailureFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFilter
}

func (s *FakeFailureStore) match(f beacon.FailureFilter) []beacon.Failure {
	var out []beacon.Failure
	for _, r := range s.rows {
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, r)
	}
	return out
}
