// Package table collects emitted rows into a tabular container and
// exports them as CSV with a stable header.
package table

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/scholarpipe/harvester/pkg/normalize"
)

// Header is the stable CSV column order.
func Header() []string {
	return []string{
		"identity_key",
		"title",
		"authors",
		"date",
		"abstract",
		"url",
		"doi",
		"journal",
		"content_type",
		"keywords",
		"citations",
		"source_id",
		"fetched_at",
		"summary",
	}
}

// Sink accumulates rows in emission order. It is safe for concurrent
// Consume calls, though the orchestrator serializes delivery.
type Sink struct {
	mu        sync.Mutex
	rows      []normalize.Row
	summaries map[string]string
}

func New() *Sink {
	return &Sink{summaries: make(map[string]string)}
}

func (s *Sink) Consume(row normalize.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

// Rows returns the consumed rows in emission order.
func (s *Sink) Rows() []normalize.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]normalize.Row, len(s.rows))
	copy(out, s.rows)
	return out
}

// Annotate attaches a generated summary to the row with the given
// identity key. Unknown keys are ignored.
func (s *Sink) Annotate(identityKey, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[identityKey] = strings.TrimSpace(summary)
}

// DataFrame builds the tabular view of everything consumed so far.
func (s *Sink) DataFrame() dataframe.DataFrame {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([][]string, 0, len(s.rows)+1)
	records = append(records, Header())
	for _, row := range s.rows {
		records = append(records, s.record(row))
	}
	// Every column stays a string column: type inference would turn sparse
	// columns (all-empty abstracts, say) into NaN-filled numeric series.
	return dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
}

// WriteCSV exports the table. Rows appear in emission order.
func (s *Sink) WriteCSV(w io.Writer) error {
	df := s.DataFrame()
	if df.Err != nil {
		return fmt.Errorf("build table: %w", df.Err)
	}
	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func (s *Sink) record(row normalize.Row) []string {
	date := ""
	if row.PublishedAt != nil {
		date = row.PublishedAt.UTC().Format("2006-01-02")
	}
	return []string{
		row.IdentityKey,
		row.Title,
		jsonArrayOrEmpty(row.Authors),
		date,
		row.Abstract,
		row.URL,
		row.DOI,
		row.Journal,
		row.ContentType,
		jsonArrayOrEmpty(row.Keywords),
		strconv.Itoa(row.CitationCount),
		row.SourceID,
		row.FetchedAt.UTC().Format("2006-01-02T15:04:05Z"),
		s.summaries[row.IdentityKey],
	}
}

func jsonArrayOrEmpty(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	b, err := json.Marshal(vals)
	if err != nil {
		// Should not happen for []string, but keep output stable.
		return ""
	}
	return string(b)
}
