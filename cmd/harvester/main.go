package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/scholarpipe/harvester/internal/app"
	"github.com/scholarpipe/harvester/internal/config"
	"github.com/scholarpipe/harvester/internal/version"
	"github.com/scholarpipe/harvester/pkg/pipeline/redact"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version", "--version":
		fmt.Println(version.Current)
		return
	case "run":
		os.Exit(runHarvest(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runHarvest(ctx context.Context, args []string) int {
	env, err := config.LoadEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var sourcesPath string
	var outputPath string
	var workers int
	var maxAttempts int
	var attemptTimeout time.Duration
	var deadline time.Duration

	fs.StringVar(&sourcesPath, "sources", "", "Sources YAML file path")
	fs.StringVar(&outputPath, "output", "", "Output CSV file path")
	fs.IntVar(&workers, "workers", env.Workers, "Number of concurrent pipeline workers (env: WORKERS)")
	fs.IntVar(&maxAttempts, "max-attempts", env.MaxAttempts, "Max fetch attempts per work item (env: MAX_ATTEMPTS)")
	fs.DurationVar(&attemptTimeout, "attempt-timeout", env.AttemptTimeout, "Per-attempt fetch timeout (env: ATTEMPT_TIMEOUT)")
	fs.DurationVar(&deadline, "deadline", env.RunDeadline, "Whole-run deadline, 0 disables (env: RUN_DEADLINE)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if sourcesPath == "" || outputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "run requires --sources and --output")
		return 2
	}

	env.Workers = workers
	env.MaxAttempts = maxAttempts
	env.AttemptTimeout = attemptTimeout
	env.RunDeadline = deadline

	if _, err := app.RunHarvest(ctx, env, sourcesPath, outputPath); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "harvest failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	return 0
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `harvester %s

Usage:
  harvester run --sources <file> --output <file> [flags]
  harvester version
  harvester help

Commands:
  run       Harvest all configured sources and write normalized rows as CSV.
  version   Print the release version.

Run flags:
  --sources          Sources YAML file path (required)
  --output           Output CSV file path (required)
  --workers          Concurrent pipeline workers (env: WORKERS)
  --max-attempts     Max fetch attempts per work item (env: MAX_ATTEMPTS)
  --attempt-timeout  Per-attempt fetch timeout (env: ATTEMPT_TIMEOUT)
  --deadline         Whole-run deadline, 0 disables (env: RUN_DEADLINE)

Environment:
  USER_AGENT       User-Agent header for upstream requests
  GEMINI_API_KEY   Enables the optional summary annotation pass
  GEMINI_MODEL     Gemini model for summaries
  BACKOFF_INITIAL, BACKOFF_MAX, BACKOFF_JITTER_FRAC  Retry backoff tuning

A .env file in the working directory is loaded when present.
`, version.Current)
}
