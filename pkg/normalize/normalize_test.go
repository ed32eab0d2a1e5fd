package normalize_test

import (
	"strings"
	"testing"
	"time"

	"github.com/scholarpipe/harvester/pkg/normalize"
	"github.com/scholarpipe/harvester/pkg/source"
)

func newNormalizer(t *testing.T, cfg normalize.Config) *normalize.Normalizer {
	t.Helper()
	n, err := normalize.New(cfg)
	if err != nil {
		t.Fatalf("normalize.New: %v", err)
	}
	return n
}

func testConfig() normalize.Config {
	return normalize.Config{
		Mappings: map[string]normalize.SourceMapping{
			"openalex": {
				normalize.FieldTitle:     "display_name",
				normalize.FieldAuthors:   "authors",
				normalize.FieldDate:      "publication_date",
				normalize.FieldDOI:       "doi",
				normalize.FieldCitations: "cited_by_count",
			},
			"dspace": {
				normalize.FieldTitle:   "title",
				normalize.FieldAuthors: "author_list",
				normalize.FieldDate:    "date",
				normalize.FieldURL:     "link",
			},
		},
		Required:       []string{normalize.FieldTitle},
		IdentityFields: []string{normalize.FieldDOI, normalize.FieldTitle},
	}
}

func TestNormalizeMapsAndCoerces(t *testing.T) {
	t.Parallel()

	n := newNormalizer(t, testConfig())
	fetchedAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	row, drop := n.Normalize(source.Record{
		SourceID: "openalex",
		Fields: map[string]any{
			"display_name":     "  Urban Health Outcomes  ",
			"authors":          []any{"Wanjiru, A.", " Otieno, D. "},
			"publication_date": "2023-05-11",
			"doi":              "10.1234/uhea.2023.001",
			"cited_by_count":   float64(14),
			"unmapped_noise":   "ignored",
		},
	}, fetchedAt)
	if drop != nil {
		t.Fatalf("unexpected drop: %s", drop)
	}
	if row.Title != "Urban Health Outcomes" {
		t.Fatalf("title = %q", row.Title)
	}
	if len(row.Authors) != 2 || row.Authors[1] != "Otieno, D." {
		t.Fatalf("authors = %#v", row.Authors)
	}
	if row.PublishedAt == nil || !row.PublishedAt.Equal(time.Date(2023, 5, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("published at = %v", row.PublishedAt)
	}
	if row.CitationCount != 14 {
		t.Fatalf("citations = %d", row.CitationCount)
	}
	if row.SourceID != "openalex" || !row.FetchedAt.Equal(fetchedAt) {
		t.Fatalf("provenance: source=%q fetchedAt=%v", row.SourceID, row.FetchedAt)
	}
	if row.IdentityKey == "" {
		t.Fatal("identity key missing")
	}
}

func TestNormalizeDropReasons(t *testing.T) {
	t.Parallel()

	n := newNormalizer(t, testConfig())
	now := time.Now().UTC()

	cases := []struct {
		name   string
		rec    source.Record
		reason string
	}{
		{
			name:   "unknown source",
			rec:    source.Record{SourceID: "mystery", Fields: map[string]any{"title": "x"}},
			reason: normalize.DropUnknownSource,
		},
		{
			name:   "missing required title",
			rec:    source.Record{SourceID: "dspace", Fields: map[string]any{"date": "2023-05-11"}},
			reason: normalize.DropMissingRequired,
		},
		{
			name: "ambiguous date",
			rec: source.Record{SourceID: "dspace", Fields: map[string]any{
				"title": "Ambiguous", "date": "not a date at all",
			}},
			reason: normalize.DropBadDate,
		},
		{
			name: "yearless date without default year",
			rec: source.Record{SourceID: "dspace", Fields: map[string]any{
				"title": "Yearless", "date": "May 11",
			}},
			reason: normalize.DropBadDate,
		},
		{
			name: "bad citation count",
			rec: source.Record{SourceID: "openalex", Fields: map[string]any{
				"display_name": "Bad Count", "cited_by_count": "many",
			}},
			reason: normalize.DropBadNumber,
		},
	}
	for _, tc := range cases {
		_, drop := n.Normalize(tc.rec, now)
		if drop == nil {
			t.Fatalf("%s: expected drop", tc.name)
		}
		if drop.Reason != tc.reason {
			t.Fatalf("%s: reason = %q, want %q", tc.name, drop.Reason, tc.reason)
		}
	}
}

func TestNormalizeIsTotalOverHostileInput(t *testing.T) {
	t.Parallel()

	n := newNormalizer(t, testConfig())
	now := time.Now().UTC()

	hostile := []map[string]any{
		nil,
		{},
		{"display_name": nil},
		{"display_name": 3.14, "authors": "A; B; C"},
		{"display_name": "T", "publication_date": float64(2021)},
		{"display_name": "T", "authors": map[string]any{"weird": "shape"}},
	}
	for i, fields := range hostile {
		// Must never panic; a drop is fine.
		row, drop := n.Normalize(source.Record{SourceID: "openalex", Fields: fields}, now)
		if drop == nil && row.IdentityKey == "" {
			t.Fatalf("case %d: produced row without identity key", i)
		}
	}
}

func TestNormalizeYearOnlyAndDefaultYearDates(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.DefaultYear = 2020
	n := newNormalizer(t, cfg)
	now := time.Now().UTC()

	row, drop := n.Normalize(source.Record{SourceID: "openalex", Fields: map[string]any{
		"display_name": "Year Only", "publication_date": "2021",
	}}, now)
	if drop != nil {
		t.Fatalf("year-only date dropped: %s", drop)
	}
	if got := *row.PublishedAt; !got.Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("year-only date = %v", got)
	}

	row, drop = n.Normalize(source.Record{SourceID: "openalex", Fields: map[string]any{
		"display_name": "Yearless", "publication_date": "May 11",
	}}, now)
	if drop != nil {
		t.Fatalf("yearless date with default year dropped: %s", drop)
	}
	if got := *row.PublishedAt; !got.Equal(time.Date(2020, time.May, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("default year not applied: %v", got)
	}
}

func TestIdentityKeyIsSourceIndependent(t *testing.T) {
	t.Parallel()

	n := newNormalizer(t, testConfig())
	now := time.Now().UTC()

	fromAPI, drop := n.Normalize(source.Record{SourceID: "openalex", Fields: map[string]any{
		"display_name": "Urban  Health   Outcomes",
	}}, now)
	if drop != nil {
		t.Fatalf("api row dropped: %s", drop)
	}
	fromScrape, drop := n.Normalize(source.Record{SourceID: "dspace", Fields: map[string]any{
		"title": "  urban health outcomes ",
	}}, now)
	if drop != nil {
		t.Fatalf("scrape row dropped: %s", drop)
	}

	if fromAPI.IdentityKey != fromScrape.IdentityKey {
		t.Fatalf("same item from two sources got different keys: %q vs %q", fromAPI.IdentityKey, fromScrape.IdentityKey)
	}
}

func TestIdentityKeyFieldOrderAndDisambiguation(t *testing.T) {
	t.Parallel()

	fields := []string{normalize.FieldDOI, normalize.FieldTitle}

	withDOI := normalize.Row{Title: "Same Value", DOI: "Same Value"}
	titleOnly := normalize.Row{Title: "Same Value"}

	// The same literal value under different identity fields must not collide.
	if k1, k2 := normalize.IdentityKey(withDOI, fields), normalize.IdentityKey(titleOnly, fields); k1 == k2 {
		t.Fatalf("doi-derived and title-derived keys collide: %q", k1)
	}

	if got := normalize.IdentityKey(normalize.Row{}, fields); got != "" {
		t.Fatalf("row without identity fields got key %q", got)
	}

	key := normalize.IdentityKey(titleOnly, fields)
	if !strings.HasPrefix(key, normalize.IdentityVersion+":") {
		t.Fatalf("key %q not tagged with version", key)
	}
}

func TestNewRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := normalize.New(normalize.Config{
		Mappings: map[string]normalize.SourceMapping{"s": {"not_a_column": "raw"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown canonical field")
	}

	_, err = normalize.New(normalize.Config{Required: []string{"bogus"}})
	if err == nil {
		t.Fatal("expected error for unknown required field")
	}
}
