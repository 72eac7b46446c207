package sqlite

import (
	"context"
	"testing"
	"time"

	beacon "github.com/eugener/beacon/internal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// Use a unique file-based temp DB for each test to avoid shared :memory: races
	path := t.TempDir() + "/test.db"
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFailureRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	f := &beacon.Failure{
		MessageID:  "msg-1",
		Type:       beacon.TypeTrack,
		Endpoint:   "https://api.segment.io/v1/track",
		StatusCode: 400,
		Error:      "HTTP 400",
		Body:       `{"event":"Signed Up"}`,
	}
	if err := s.InsertFailure(ctx, f); err != nil {
		t.Fatal("insert:", err)
	}
	if f.ID == "" {
		t.Error("InsertFailure should assign an ID")
	}
	if f.CreatedAt.IsZero() {
		t.Error("InsertFailure should set CreatedAt")
	}

	got, err := s.ListFailures(ctx, beacon.FailureFilter{})
	if err != nil {
		t.Fatal("list:", err)
	}
	if len(got) != 1 {
		t.Fatalf("list count = %d, want 1", len(got))
	}
	r := got[0]
	if r.ID != f.ID || r.MessageID != "msg-1" || r.Type != beacon.TypeTrack {
		t.Errorf("row = %+v", r)
	}
	if r.StatusCode != 400 {
		t.Errorf("status = %d, want 400", r.StatusCode)
	}
	if r.Body != f.Body {
		t.Errorf("body = %q, want %q", r.Body, f.Body)
	}
}

func TestListFailuresFilterAndOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	rows := []beacon.Failure{
		{MessageID: "a", Type: beacon.TypeTrack, CreatedAt: base.Add(-3 * time.Hour)},
		{MessageID: "b", Type: beacon.TypeIdentify, CreatedAt: base.Add(-2 * time.Hour)},
		{MessageID: "c", Type: beacon.TypeTrack, CreatedAt: base.Add(-1 * time.Hour)},
	}
	for i := range rows {
		if err := s.InsertFailure(ctx, &rows[i]); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListFailures(ctx, beacon.FailureFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].MessageID != "c" || all[2].MessageID != "a" {
		t.Fatalf("order = %v, want newest first", ids(all))
	}

	tracks, err := s.ListFailures(ctx, beacon.FailureFilter{Type: beacon.TypeTrack})
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 2 {
		t.Errorf("track failures = %d, want 2", len(tracks))
	}

	recent, err := s.ListFailures(ctx, beacon.FailureFilter{Since: base.Add(-90 * time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].MessageID != "c" {
		t.Errorf("recent = %v, want [c]", ids(recent))
	}

	page, err := s.ListFailures(ctx, beacon.FailureFilter{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].MessageID != "b" {
		t.Errorf("page = %v, want [b]", ids(page))
	}

	n, err := s.CountFailures(ctx, beacon.FailureFilter{Type: beacon.TypeTrack})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestDeleteFailuresBefore(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := &beacon.Failure{MessageID: "old", Type: beacon.TypeAlias, CreatedAt: now.Add(-48 * time.Hour)}
	fresh := &beacon.Failure{MessageID: "fresh", Type: beacon.TypeAlias, CreatedAt: now}
	for _, f := range []*beacon.Failure{old, fresh} {
		if err := s.InsertFailure(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.DeleteFailuresBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	left, err := s.ListFailures(ctx, beacon.FailureFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].MessageID != "fresh" {
		t.Errorf("left = %v, want [fresh]", ids(left))
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func ids(fs []beacon.Failure) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.MessageID
	}
	return out
}
