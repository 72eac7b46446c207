// Beacon delivers analytics events (alias, identify, track) to a tracking
// API in the background. It runs as a local HTTP relay, a one-shot NDJSON
// sender, or a viewer for the failed-delivery journal.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
)

var version = "dev"

const usageText = `usage: beacon [flags] <command> [args]

commands:
  serve             run the HTTP relay (default)
  send              read NDJSON events from stdin and deliver them
  failures [flags]  list recorded delivery failures

flags:
`

func main() {
	configPath := flag.String("config", "configs/beacon.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("beacon", version)
		os.Exit(0)
	}
	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})

	cmd, args := "serve", flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(*configPath, explicit)
	case "send":
		err = runSend(*configPath, explicit, os.Stdin)
	case "failures":
		err = runFailures(*configPath, explicit, args, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
