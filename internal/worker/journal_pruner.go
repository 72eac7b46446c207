package worker

import (
	"context"
	"log/slog"
	"time"
)

// PruneStore is the persistence interface consumed by JournalPruner.
type PruneStore interface {
	DeleteFailuresBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// JournalPruner periodically deletes failure journal rows older than the
// retention window.
type JournalPruner struct {
	store     PruneStore
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewJournalPruner creates a pruner that runs every interval and keeps rows
// younger than retention.
func NewJournalPruner(store PruneStore, retention, interval time.Duration) *JournalPruner {
	return &JournalPruner{
		store:     store,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}
}

// Name returns the worker identifier.
func (p *JournalPruner) Name() string { return "journal_pruner" }

// Run prunes once at startup, then on every tick until ctx is cancelled.
func (p *JournalPruner) Run(ctx context.Context) error {
	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *JournalPruner) prune(ctx context.Context) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.DeleteFailuresBefore(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.LogAttrs(ctx, slog.LevelError, "journal prune failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if n > 0 {
		slog.Info("failure journal pruned", "deleted", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
}
