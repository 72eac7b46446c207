package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/eugener/beacon/internal/analytics"
)

// maxLine bounds a single NDJSON event.
const maxLine = 1 << 20

// runSend submits one event per input line, then waits for delivery.
// Invalid lines are logged and skipped.
func runSend(configPath string, explicit bool, in io.Reader) error {
	cfg, err := loadConfig(configPath, explicit)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	accepted, rejected, err := sendLines(ctx, a.client, in)
	a.drain()
	slog.Info("send finished", "accepted", accepted, "rejected", rejected)
	if err != nil {
		return err
	}
	if rejected > 0 {
		return fmt.Errorf("%d of %d events rejected", rejected, accepted+rejected)
	}
	return nil
}

func sendLines(ctx context.Context, sink analytics.Sink, in io.Reader) (accepted, rejected int, err error) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := analytics.Dispatch(ctx, sink, raw); err != nil {
			rejected++
			slog.Warn("event rejected", "line", line, "error", err)
			continue
		}
		accepted++
	}
	if err := sc.Err(); err != nil {
		return accepted, rejected, fmt.Errorf("read input: %w", err)
	}
	return accepted, rejected, nil
}
