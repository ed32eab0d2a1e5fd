// Package app wires configuration, the pipeline stages, and the sink into
// a complete harvest run.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/scholarpipe/harvester/internal/config"
	"github.com/scholarpipe/harvester/internal/enrich"
	"github.com/scholarpipe/harvester/internal/enrich/gemini"
	"github.com/scholarpipe/harvester/pkg/fetch"
	"github.com/scholarpipe/harvester/pkg/normalize"
	"github.com/scholarpipe/harvester/pkg/pipeline/run"
	"github.com/scholarpipe/harvester/pkg/pipeline/worker"
	"github.com/scholarpipe/harvester/pkg/sink/table"
)

// RunHarvest loads the sources file, executes the pipeline, and writes the
// emitted rows as CSV to outputPath. When env carries Gemini credentials,
// emitted rows get a summary annotation pass before export.
func RunHarvest(ctx context.Context, env config.Env, sourcesPath, outputPath string) (run.Summary, error) {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	logf := func(format string, args ...any) {
		prefix := make([]any, 0, len(args)+1)
		prefix = append(prefix, runID)
		prefix = append(prefix, args...)
		logger.Printf("run=%s "+format, prefix...)
	}
	runStart := time.Now()

	file, err := config.LoadFile(sourcesPath)
	if err != nil {
		return run.Summary{}, err
	}
	items := file.WorkItems()
	adapters := file.Adapters()
	normalizer, err := normalize.New(file.NormalizerConfig())
	if err != nil {
		return run.Summary{}, err
	}

	fetcher := fetch.NewClient(file.LimiterTable(), fetch.Options{
		UserAgent: env.UserAgent,
	})
	sink := table.New()

	logf(
		"harvest start: sources=%d items=%d workers=%d maxAttempts=%d attemptTimeout=%s deadline=%s",
		len(file.Sources),
		len(items),
		env.Workers,
		env.MaxAttempts,
		env.AttemptTimeout,
		env.RunDeadline,
	)

	orch := run.New(fetcher, adapters, normalizer, sink, run.Options{
		Workers:           env.Workers,
		MaxAttempts:       env.MaxAttempts,
		AttemptTimeout:    env.AttemptTimeout,
		Deadline:          env.RunDeadline,
		BackoffInitial:    env.BackoffInitial,
		BackoffMax:        env.BackoffMax,
		BackoffJitterFrac: env.BackoffJitterFrac,
		OnOutcome: func(out run.Outcome) {
			if out.State == run.StateFailed {
				logf(
					"item failed: source=%s url=%s reason=%s attempts=%d error=%q",
					out.Item.SourceID,
					out.Item.URL,
					out.Reason,
					out.Attempts,
					errString(out.Err),
				)
				return
			}
			logf(
				"item processed: source=%s url=%s attempts=%d emitted=%d suppressed=%d dropped=%d skipped=%d",
				out.Item.SourceID,
				out.Item.URL,
				out.Attempts,
				out.Emitted,
				out.Supp,
				out.Dropped,
				out.Skipped,
			)
		},
	})

	summary, runErr := orch.Run(ctx, items)
	logSummary(logf, summary)
	if runErr != nil {
		return summary, runErr
	}

	if env.GeminiAPIKey != "" {
		if err := annotateSummaries(ctx, env, sink, logf); err != nil {
			// Annotation is best effort; the harvest result stands.
			logf("summary annotation failed: %v", err)
		}
	}

	outF, err := os.Create(outputPath)
	if err != nil {
		return summary, err
	}
	defer func() {
		_ = outF.Close()
	}()
	if err := sink.WriteCSV(outF); err != nil {
		return summary, err
	}
	if err := outF.Close(); err != nil {
		return summary, err
	}

	logf(
		"harvest complete: output=%s rows=%d totalDuration=%s",
		outputPath,
		summary.Emitted,
		time.Since(runStart).Round(time.Millisecond),
	)
	return summary, nil
}

func logSummary(logf func(string, ...any), s run.Summary) {
	logf(
		"run summary: items=%d emitted=%d suppressed=%d dropped=%d failed=%d skippedElements=%d elapsed=%s",
		s.Items,
		s.Emitted,
		s.Suppressed,
		s.Dropped,
		s.Failed,
		s.SkippedElements,
		s.Elapsed.Round(time.Millisecond),
	)
	for host, n := range s.FailuresByHost {
		logf("failures by host: host=%s count=%d", host, n)
	}
	for reason, n := range s.DropsByReason {
		logf("drops by reason: reason=%s count=%d", reason, n)
	}
	for src, n := range s.EmittedBySource {
		logf("emitted by source: source=%s count=%d", src, n)
	}
}

// annotateSummaries runs the optional Gemini pass over emitted rows,
// reusing the worker pool for bounded concurrency and retry.
func annotateSummaries(ctx context.Context, env config.Env, sink *table.Sink, logf func(string, ...any)) error {
	summarizer, err := gemini.New(ctx, gemini.Config{
		APIKey:  env.GeminiAPIKey,
		Model:   env.GeminiModel,
		BaseURL: env.GeminiBaseURL,
	})
	if err != nil {
		return err
	}
	return annotateWith(ctx, env, summarizer, sink, logf)
}

func annotateWith(ctx context.Context, env config.Env, summarizer enrich.Summarizer, sink *table.Sink, logf func(string, ...any)) error {
	rows := sink.Rows()
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()
	logf("summary annotation start: rows=%d model=%s", len(rows), env.GeminiModel)

	results, err := worker.ProcessAll(ctx, rows,
		func(ctx context.Context, row normalize.Row) (enrich.Summary, error) {
			return summarizer.Summarize(ctx, row.Title, row.Abstract)
		},
		worker.Options{
			Workers:           env.Workers,
			MaxAttempts:       env.MaxAttempts,
			AttemptTimeout:    env.AttemptTimeout,
			BackoffInitial:    env.BackoffInitial,
			BackoffMax:        env.BackoffMax,
			BackoffJitterFrac: env.BackoffJitterFrac,
		})
	if err != nil {
		return err
	}

	annotated := 0
	for _, res := range results {
		if res.Err != nil {
			logf("summary skipped: key=%s attempts=%d error=%q", res.Input.IdentityKey, res.Attempts, errString(res.Err))
			continue
		}
		if strings.TrimSpace(res.Output.Text) == "" {
			continue
		}
		sink.Annotate(res.Input.IdentityKey, res.Output.Text)
		annotated++
	}
	logf("summary annotation complete: annotated=%d/%d duration=%s", annotated, len(rows), time.Since(start).Round(time.Millisecond))
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
