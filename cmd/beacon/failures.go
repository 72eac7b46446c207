package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	beacon "github.com/eugener/beacon/internal"
	"github.com/eugener/beacon/internal/storage/sqlite"
)

// runFailures prints recent journal rows as a table.
func runFailures(configPath string, explicit bool, args []string, out io.Writer) error {
	fset := flag.NewFlagSet("failures", flag.ContinueOnError)
	typ := fset.String("type", "", "only show this event type (alias, identify, track)")
	since := fset.Duration("since", 24*time.Hour, "only show failures newer than this")
	limit := fset.Int("limit", 20, "maximum rows to print")
	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath, explicit)
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		return errors.New("failure journal is disabled (journal.enabled)")
	}
	store, err := sqlite.New(cfg.Journal.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	filter := beacon.FailureFilter{
		Type:  beacon.EventType(*typ),
		Limit: *limit,
	}
	if *since > 0 {
		filter.Since = time.Now().Add(-*since)
	}
	ctx := context.Background()
	rows, err := store.ListFailures(ctx, filter)
	if err != nil {
		return err
	}
	total, err := store.CountFailures(ctx, filter)
	if err != nil {
		return err
	}
	return printFailures(out, rows, total)
}

func printFailures(out io.Writer, rows []beacon.Failure, total int) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tMESSAGE ID\tSTATUS\tERROR")
	for _, f := range rows {
		status := "-"
		if f.StatusCode != 0 {
			status = fmt.Sprint(f.StatusCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			f.CreatedAt.Local().Format(time.DateTime), f.Type, f.MessageID, status, truncate(f.Error, 80))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d of %d failures shown\n", len(rows), total)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
