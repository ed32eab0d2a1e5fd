// Package normalize maps heterogeneous source records into the canonical
// row schema: per-source field renaming, type coercion, strict date
// parsing, and identity-key derivation.
package normalize

import (
	"fmt"
	"time"

	"github.com/scholarpipe/harvester/pkg/source"
)

// Drop reasons, reported in the run summary.
const (
	DropMissingRequired = "missing_required"
	DropBadDate         = "bad_date"
	DropBadNumber       = "bad_number"
	DropNoIdentity      = "no_identity"
	DropUnknownSource   = "unknown_source"
)

// Drop explains why a record was discarded instead of normalized.
type Drop struct {
	Reason string
	Field  string
}

func (d *Drop) String() string {
	if d == nil {
		return ""
	}
	if d.Field == "" {
		return d.Reason
	}
	return fmt.Sprintf("%s(%s)", d.Reason, d.Field)
}

// SourceMapping renames raw fields into canonical columns for one source:
// canonical field name -> raw field name.
type SourceMapping map[string]string

// Config configures the normalizer.
type Config struct {
	// Mappings holds the per-source field mapping tables.
	Mappings map[string]SourceMapping

	// Required lists canonical fields a row must derive or be dropped.
	Required []string

	// IdentityFields is the ordered field list for identity derivation.
	IdentityFields []string

	// DefaultYear resolves yearless dates; 0 means yearless dates drop.
	DefaultYear int
}

// Normalizer is a pure, total transform: it never panics or errors, it
// either produces a canonical row or a drop with a counted reason.
type Normalizer struct {
	cfg Config
}

// New validates the config against the canonical schema.
func New(cfg Config) (*Normalizer, error) {
	if len(cfg.Required) == 0 {
		cfg.Required = []string{FieldTitle}
	}
	if len(cfg.IdentityFields) == 0 {
		cfg.IdentityFields = []string{FieldDOI, FieldTitle}
	}
	if err := ValidateFields(cfg.Required); err != nil {
		return nil, fmt.Errorf("required fields: %w", err)
	}
	if err := ValidateFields(cfg.IdentityFields); err != nil {
		return nil, fmt.Errorf("identity fields: %w", err)
	}
	for sourceID, m := range cfg.Mappings {
		for canonical := range m {
			if !KnownField(canonical) {
				return nil, fmt.Errorf("source %s: unknown canonical field %q in mapping", sourceID, canonical)
			}
		}
	}
	return &Normalizer{cfg: cfg}, nil
}

// Normalize maps one raw record into a canonical row. A nil Drop means the
// row was produced; otherwise the row is discarded for the given reason.
func (n *Normalizer) Normalize(rec source.Record, fetchedAt time.Time) (Row, *Drop) {
	mapping, ok := n.cfg.Mappings[rec.SourceID]
	if !ok {
		return Row{}, &Drop{Reason: DropUnknownSource}
	}

	row := Row{SourceID: rec.SourceID, FetchedAt: fetchedAt}

	get := func(canonical string) (any, bool) {
		rawName, mapped := mapping[canonical]
		if !mapped {
			return nil, false
		}
		v, present := rec.Fields[rawName]
		if !present || v == nil {
			return nil, false
		}
		return v, true
	}

	if v, ok := get(FieldTitle); ok {
		row.Title = coerceString(v)
	}
	if v, ok := get(FieldAuthors); ok {
		row.Authors = coerceStringList(v)
	}
	if v, ok := get(FieldAbstract); ok {
		row.Abstract = coerceString(v)
	}
	if v, ok := get(FieldURL); ok {
		row.URL = coerceString(v)
	}
	if v, ok := get(FieldDOI); ok {
		row.DOI = coerceString(v)
	}
	if v, ok := get(FieldJournal); ok {
		row.Journal = coerceString(v)
	}
	if v, ok := get(FieldContentType); ok {
		row.ContentType = coerceString(v)
	}
	if v, ok := get(FieldKeywords); ok {
		row.Keywords = coerceStringList(v)
	}
	if v, ok := get(FieldCitations); ok {
		count, err := coerceInt(v)
		if err != nil {
			return Row{}, &Drop{Reason: DropBadNumber, Field: FieldCitations}
		}
		row.CitationCount = count
	}
	if v, ok := get(FieldDate); ok {
		at, err := coerceDate(v, n.cfg.DefaultYear)
		if err != nil {
			return Row{}, &Drop{Reason: DropBadDate, Field: FieldDate}
		}
		row.PublishedAt = &at
	}

	for _, req := range n.cfg.Required {
		if row.canonicalValue(req) == "" {
			return Row{}, &Drop{Reason: DropMissingRequired, Field: req}
		}
	}

	row.IdentityKey = IdentityKey(row, n.cfg.IdentityFields)
	if row.IdentityKey == "" {
		return Row{}, &Drop{Reason: DropNoIdentity}
	}
	return row, nil
}
