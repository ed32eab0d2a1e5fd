// Package worker runs a processor over many items with bounded
// concurrency, retrying transient failures with exponential backoff.
package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/scholarpipe/harvester/pkg/pipeline/core"
)

type Options struct {
	// Workers bounds total in-flight pipeline work. This is distinct from
	// per-host rate limiting, which the processor's fetch path enforces.
	Workers int

	// MaxAttempts caps logical attempts per item, including the first.
	MaxAttempts int

	// AttemptTimeout applies per attempt, not per item.
	AttemptTimeout time.Duration

	// BackoffInitial is the initial sleep before retrying a transient failure.
	BackoffInitial time.Duration
	// BackoffMax caps exponential backoff.
	BackoffMax time.Duration
	// BackoffJitterFrac scales backoff by uniform(1-f, 1+f) (0.5 = +/-50%).
	BackoffJitterFrac float64
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	Input    In
	Output   Out
	Err      error
	Attempts int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 10
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 30 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 200 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 5 * time.Second
	}
	if o.BackoffJitterFrac <= 0 {
		o.BackoffJitterFrac = 0.5
	}
	return o
}

// ProcessAll runs the processor over all input items and returns one
// result per item, in input order.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	return ProcessAllWithCallback(ctx, items, processor, nil, opts)
}

// ProcessAllWithCallback additionally invokes onResult as each item
// completes, serialized in completion order (so consumers need no
// locking). A callback error cancels the remaining work.
//
// Cancellation never loses items: an in-flight attempt finishes on its own
// timeout (it is never retried), and work not yet started is reported with
// the context error so callers can count it.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]Result[In, Out], len(items))

	type job struct {
		idx int
		in  In
	}
	jobs := make(chan job)
	done := make(chan int, opts.Workers)

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := runCtx.Err(); err != nil {
					out[j.idx] = Result[In, Out]{Input: j.in, Err: err}
				} else {
					out[j.idx] = processOne(runCtx, j.in, processor, opts)
				}
				done <- j.idx
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job{idx: i, in: item}:
			case <-runCtx.Done():
				out[i] = Result[In, Out]{Input: item, Err: runCtx.Err()}
				done <- i
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	var firstErr error
	for idx := range done {
		if onResult == nil || firstErr != nil {
			continue
		}
		if err := onResult(out[idx]); err != nil {
			firstErr = err
			cancel()
		}
	}
	return out, firstErr
}

func processOne[In any, Out any](
	ctx context.Context,
	item In,
	processor func(context.Context, In) (Out, error),
	opts Options,
) Result[In, Out] {
	res := Result[In, Out]{Input: item}
	var lastOut Out
	for {
		if err := ctx.Err(); err != nil {
			res.Output = lastOut
			res.Err = err
			return res
		}

		// Cancellation mid-flight lets the attempt run out its own timeout;
		// the next iteration's context check stops any retry.
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.AttemptTimeout)
		out, err := processor(reqCtx, item)
		cancel()
		res.Attempts++
		lastOut = out

		if err == nil {
			res.Output = out
			return res
		}
		if ctx.Err() != nil {
			res.Output = lastOut
			res.Err = ctx.Err()
			return res
		}
		if !isTransient(err) || res.Attempts >= maxAttempts(opts.MaxAttempts, err) {
			res.Output = lastOut
			res.Err = err
			return res
		}

		sleep := backoffSleep(opts.BackoffInitial, opts.BackoffMax, opts.BackoffJitterFrac, res.Attempts-1)
		if hint := retryAfterHint(err); hint > sleep {
			sleep = hint
		}
		t := time.NewTimer(sleep)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			res.Output = lastOut
			res.Err = ctx.Err()
			return res
		}
	}
}

type retryCap interface {
	MaxExtraRetries() int
}

func maxAttempts(defaultMax int, err error) int {
	if defaultMax < 1 {
		defaultMax = 1
	}
	var capErr retryCap
	if errors.As(err, &capErr) {
		limited := capErr.MaxExtraRetries() + 1
		if limited < 1 {
			limited = 1
		}
		if limited < defaultMax {
			return limited
		}
	}
	return defaultMax
}

type retryAfterHinter interface {
	RetryAfterHint() time.Duration
}

// retryAfterHint surfaces a server-provided delay (Retry-After on 429/503)
// so the sleep below never undercuts what the server asked for.
func retryAfterHint(err error) time.Duration {
	var h retryAfterHinter
	if errors.As(err, &h) {
		return h.RetryAfterHint()
	}
	return 0
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *core.TransientError
	if errors.As(err, &te) {
		return true
	}
	var lte *core.LimitedTransientError
	if errors.As(err, &lte) {
		return true
	}
	var pe *core.PermanentError
	if errors.As(err, &pe) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout() || ne.Temporary()
	}
	return false
}

func backoffSleep(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt && sleep < max; i++ {
		sleep *= 2
		if sleep > max {
			sleep = max
			break
		}
	}
	if jitterFrac <= 0 {
		return sleep
	}
	// Apply +/- jitterFrac.
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}
