package normalize

import (
	"fmt"
	"strings"
	"time"
)

// Row is the canonical shape every source maps into.
//
// IdentityKey is derived from canonical identity fields only, never from
// provenance, so the same logical item collapses to one row regardless of
// which source produced it.
type Row struct {
	IdentityKey string

	Title         string
	Authors       []string
	PublishedAt   *time.Time
	Abstract      string
	URL           string
	DOI           string
	Journal       string
	ContentType   string
	Keywords      []string
	CitationCount int

	// Provenance.
	SourceID  string
	FetchedAt time.Time
}

// Canonical field names, used by per-source mapping tables and the
// identity field list.
const (
	FieldTitle       = "title"
	FieldAuthors     = "authors"
	FieldDate        = "date"
	FieldAbstract    = "abstract"
	FieldURL         = "url"
	FieldDOI         = "doi"
	FieldJournal     = "journal"
	FieldContentType = "content_type"
	FieldKeywords    = "keywords"
	FieldCitations   = "citations"
)

// Field describes one canonical column.
type Field struct {
	Name string
	Type string
	List bool
}

// Schema is the canonical column contract. Order is the stable export
// order.
var Schema = []Field{
	{Name: FieldTitle, Type: "string"},
	{Name: FieldAuthors, Type: "string", List: true},
	{Name: FieldDate, Type: "timestamp"},
	{Name: FieldAbstract, Type: "string"},
	{Name: FieldURL, Type: "string"},
	{Name: FieldDOI, Type: "string"},
	{Name: FieldJournal, Type: "string"},
	{Name: FieldContentType, Type: "string"},
	{Name: FieldKeywords, Type: "string", List: true},
	{Name: FieldCitations, Type: "int"},
}

// KnownField reports whether name is a canonical column.
func KnownField(name string) bool {
	name = strings.TrimSpace(strings.ToLower(name))
	for _, f := range Schema {
		if f.Name == name {
			return true
		}
	}
	return false
}

// ValidateFields rejects references to columns outside the canonical
// schema. Used for config validation at startup.
func ValidateFields(names []string) error {
	for _, n := range names {
		if !KnownField(n) {
			return fmt.Errorf("unknown canonical field %q", n)
		}
	}
	return nil
}

// canonicalValue returns a row's value for one canonical field name, as a
// string suitable for identity derivation.
func (r Row) canonicalValue(name string) string {
	switch name {
	case FieldTitle:
		return r.Title
	case FieldAuthors:
		return strings.Join(r.Authors, ";")
	case FieldDate:
		if r.PublishedAt == nil {
			return ""
		}
		return r.PublishedAt.UTC().Format("2006-01-02")
	case FieldAbstract:
		return r.Abstract
	case FieldURL:
		return r.URL
	case FieldDOI:
		return r.DOI
	case FieldJournal:
		return r.Journal
	case FieldContentType:
		return r.ContentType
	case FieldKeywords:
		return strings.Join(r.Keywords, ";")
	case FieldCitations:
		if r.CitationCount == 0 {
			return ""
		}
		return fmt.Sprintf("%d", r.CitationCount)
	default:
		return ""
	}
}
