// Package source turns raw fetch payloads into semi-structured records.
//
// Two adapter kinds share one contract: APISource walks a JSON payload to a
// configured list of entries, ScrapeSource selects repeating elements out
// of an HTML document. A bad sub-element is skipped and counted; only a
// wholly unparseable payload fails the adapter.
package source

import (
	"fmt"

	"github.com/scholarpipe/harvester/pkg/fetch"
)

// Record is one semi-structured record extracted from a fetch payload.
// Field values are untyped: strings, numbers, or nested structures.
type Record struct {
	SourceID string
	Fields   map[string]any
}

// Adapter extracts records from one fetch result. skipped counts
// sub-elements that failed validation and were dropped without aborting
// the rest of the payload.
type Adapter interface {
	Adapt(res fetch.Result) (recs []Record, skipped int, err error)
}

// ParseError reports a payload that could not be parsed at all. The
// orchestrator treats it like a permanent failure for that work item.
type ParseError struct {
	SourceID string
	Err      error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "parse error"
	}
	return fmt.Sprintf("source %s: unparseable payload: %v", e.SourceID, e.Err)
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
