package enrich

import (
	"context"

	"github.com/scholarpipe/harvester/pkg/pipeline/core"
)

// Summary is the generated annotation for one harvested row.
type Summary struct {
	Text  string
	Model string
}

// Summarizer produces a short summary from a row's title and abstract.
type Summarizer interface {
	Summarize(ctx context.Context, title, abstract string) (Summary, error)
}

// TransientError marks an error as retryable by the worker pool.
type TransientError = core.TransientError

// LimitedTransientError caps its own retry budget below the pool default.
type LimitedTransientError = core.LimitedTransientError
