// Package run drives the harvest pipeline: it schedules fetches across
// sources under a bounded worker pool, feeds payloads through the source
// adapters and the normalizer, deduplicates rows, and hands survivors to
// the sink, collecting a run summary of every terminal state.
package run

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/scholarpipe/harvester/pkg/dedupe"
	"github.com/scholarpipe/harvester/pkg/fetch"
	"github.com/scholarpipe/harvester/pkg/normalize"
	"github.com/scholarpipe/harvester/pkg/pipeline/core"
	"github.com/scholarpipe/harvester/pkg/pipeline/worker"
	"github.com/scholarpipe/harvester/pkg/source"
)

// State is the terminal state of one work item.
type State string

const (
	StateProcessed State = "processed" // fetched and adapted; rows counted separately
	StateFailed    State = "failed"
)

// Failure reasons for the per-host breakdown.
const (
	ReasonTransient = "transient_exhausted"
	ReasonPermanent = "permanent"
	ReasonParse     = "parse_error"
	ReasonCancelled = "cancelled"
)

// Outcome reports how one work item ended.
type Outcome struct {
	Item     fetch.Item
	State    State
	Reason   string
	Attempts int
	Emitted  int
	Supp     int
	Dropped  int
	Skipped  int
	Err      error

	dropReasons []string
	sinkErr     error
}

// Summary is the externally-visible health signal for a run. Emitted,
// suppressed and dropped count rows; failed counts work items.
type Summary struct {
	Items      int
	Emitted    int
	Suppressed int
	Dropped    int
	Failed     int

	FailuresByHost  map[string]int
	DropsByReason   map[string]int
	EmittedBySource map[string]int
	SkippedElements int

	Elapsed time.Duration
}

// Sink receives normalized rows in emission order, at most once per
// identity key per run.
type Sink interface {
	Consume(row normalize.Row) error
}

// Options configures a run.
type Options struct {
	// Workers bounds total in-flight pipeline work.
	Workers int
	// MaxAttempts caps fetch attempts per work item.
	MaxAttempts int
	// AttemptTimeout applies to each fetch attempt.
	AttemptTimeout time.Duration
	// Deadline bounds the whole run; 0 means no deadline.
	Deadline time.Duration

	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffJitterFrac float64

	// OnOutcome, when set, observes each work item's terminal outcome.
	OnOutcome func(Outcome)
}

// Orchestrator owns the work item lifecycle and the per-run seen set.
type Orchestrator struct {
	fetcher    *fetch.Client
	adapters   map[string]source.Adapter
	normalizer *normalize.Normalizer
	sink       Sink
	opts       Options
}

// New wires the pipeline stages together. Every source referenced by a
// work item must have an adapter.
func New(fetcher *fetch.Client, adapters map[string]source.Adapter, n *normalize.Normalizer, sink Sink, opts Options) *Orchestrator {
	return &Orchestrator{
		fetcher:    fetcher,
		adapters:   adapters,
		normalizer: n,
		sink:       sink,
		opts:       opts,
	}
}

// Run executes all work items to a terminal state (or the run deadline)
// and returns the summary. A single item's failure never aborts the run;
// Run returns an error only for a systemic condition: invalid
// configuration, a sink failure, or zero items succeeding.
func (o *Orchestrator) Run(ctx context.Context, items []fetch.Item) (Summary, error) {
	start := time.Now()
	sum := Summary{
		Items:           len(items),
		FailuresByHost:  make(map[string]int),
		DropsByReason:   make(map[string]int),
		EmittedBySource: make(map[string]int),
	}

	for _, it := range items {
		if _, ok := o.adapters[it.SourceID]; !ok {
			return sum, fmt.Errorf("work item for unknown source %q", it.SourceID)
		}
	}

	if o.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Deadline)
		defer cancel()
	}

	// Higher priority items are scheduled first.
	ordered := make([]fetch.Item, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	seen := dedupe.NewSeenSet()
	succeeded := 0

	// Fetch attempts run concurrently; adaptation, normalization, dedupe
	// and sink delivery happen in the completion callback, which the pool
	// serializes. Row state is owned by exactly one goroutine at a time.
	_, cbErr := worker.ProcessAllWithCallback(ctx, ordered,
		func(attemptCtx context.Context, it fetch.Item) (fetch.Result, error) {
			return o.fetcher.Do(attemptCtx, it)
		},
		func(res worker.Result[fetch.Item, fetch.Result]) error {
			out := o.settle(ctx, res, seen)
			sum.apply(out)
			if out.State == StateProcessed {
				succeeded++
			}
			if o.opts.OnOutcome != nil {
				o.opts.OnOutcome(out)
			}
			return out.sinkErr
		},
		worker.Options{
			Workers:           o.opts.Workers,
			MaxAttempts:       o.opts.MaxAttempts,
			AttemptTimeout:    o.opts.AttemptTimeout,
			BackoffInitial:    o.opts.BackoffInitial,
			BackoffMax:        o.opts.BackoffMax,
			BackoffJitterFrac: o.opts.BackoffJitterFrac,
		})

	sum.Elapsed = time.Since(start)

	if cbErr != nil {
		return sum, fmt.Errorf("sink: %w", cbErr)
	}
	if len(items) > 0 && succeeded == 0 {
		return sum, fmt.Errorf("no work item succeeded (%d failed); see per-host failure counts", sum.Failed)
	}
	return sum, nil
}

func (o *Orchestrator) settle(ctx context.Context, res worker.Result[fetch.Item, fetch.Result], seen *dedupe.SeenSet) Outcome {
	out := Outcome{Item: res.Input, Attempts: res.Attempts}

	if res.Err != nil {
		out.State = StateFailed
		out.Reason = classifyFailure(ctx, res.Err)
		out.Err = res.Err
		return out
	}

	adapter := o.adapters[res.Input.SourceID]
	recs, skipped, err := adapter.Adapt(res.Output)
	if err != nil {
		// A wholly unparseable payload is permanent for this item.
		out.State = StateFailed
		out.Reason = ReasonParse
		out.Err = err
		return out
	}
	out.State = StateProcessed
	out.Skipped = skipped

	for _, rec := range recs {
		row, drop := o.normalizer.Normalize(rec, res.Output.FetchedAt)
		if drop != nil {
			out.Dropped++
			out.dropReasons = append(out.dropReasons, drop.Reason)
			continue
		}
		if !seen.Admit(row.IdentityKey) {
			out.Supp++
			continue
		}
		if err := o.sink.Consume(row); err != nil {
			out.sinkErr = err
			return out
		}
		out.Emitted++
	}
	return out
}

// classifyFailure buckets a terminal failure for the summary. Cancelled is
// run-level only: an attempt that timed out on its own budget while the run
// kept going counts against the transient bucket, not cancellation.
func classifyFailure(ctx context.Context, err error) string {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ReasonCancelled
	}
	var pe *core.PermanentError
	if errors.As(err, &pe) {
		return ReasonPermanent
	}
	var parseErr *source.ParseError
	if errors.As(err, &parseErr) {
		return ReasonParse
	}
	return ReasonTransient
}

func (s *Summary) apply(out Outcome) {
	s.Emitted += out.Emitted
	s.Suppressed += out.Supp
	s.Dropped += out.Dropped
	s.SkippedElements += out.Skipped
	for _, reason := range out.dropReasons {
		s.DropsByReason[reason]++
	}
	if out.Emitted > 0 {
		s.EmittedBySource[out.Item.SourceID] += out.Emitted
	}
	if out.State == StateFailed {
		s.Failed++
		host := out.Item.Host()
		if host == "" {
			host = out.Item.SourceID
		}
		s.FailuresByHost[host]++
	}
}
