// Package testutil provides in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"sync"

	beacon "github.com/eugener/beacon/internal"
)

// FakeSink records tracking calls. Like the real client it rejects events
// without an identity; Err, when set, is returned for every call instead.
type FakeSink struct {
	mu     sync.Mutex
	events []any
	Err    error
}

func (s *FakeSink) record(ev any, hasIdentity bool) error {
	if s.Err != nil {
		return s.Err
	}
	if !hasIdentity {
		return beacon.ErrMissingIdentity
	}
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

// Alias records ev.
func (s *FakeSink) Alias(_ context.Context, ev beacon.Alias) error {
	return s.record(ev, ev.UserID != "")
}

// Identify records ev.
func (s *FakeSink) Identify(_ context.Context, ev beacon.Identify) error {
	return s.record(ev, ev.UserID != "" || ev.AnonymousID != "")
}

// Track records ev.
func (s *FakeSink) Track(_ context.Context, ev beacon.Track) error {
	return s.record(ev, ev.UserID != "" || ev.AnonymousID != "")
}

// Events returns a copy of the recorded events in call order.
func (s *FakeSink) Events() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.events...)
}
