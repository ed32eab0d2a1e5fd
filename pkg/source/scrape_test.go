package source_test

import (
	"errors"
	"testing"

	"github.com/scholarpipe/harvester/pkg/fetch"
	"github.com/scholarpipe/harvester/pkg/source"
)

const listingHTML = `<!DOCTYPE html>
<html><body>
<div class="results">
  <div class="artifact-description">
    <h4 class="artifact-title"><a href="/handle/123/1">Urban Health Outcomes</a></h4>
    <span class="author">Wanjiru, A.</span>
    <span class="author">Otieno, D.</span>
    <span class="date">2023-05-11</span>
  </div>
  <div class="artifact-description">
    <h4 class="artifact-title"><a href="https://other.example.org/2">Water Access Survey</a></h4>
    <span class="date">2024-01-19</span>
  </div>
  <div class="artifact-description">
    <span class="author">No Title Here</span>
  </div>
</div>
</body></html>`

func scrapeResult(body string) fetch.Result {
	return fetch.Result{
		Item:        fetch.Item{SourceID: "dspace", Kind: fetch.KindScrape},
		Status:      fetch.StatusOK,
		Body:        []byte(body),
		ContentType: "text/html",
	}
}

func dspaceSource() *source.ScrapeSource {
	return &source.ScrapeSource{
		SourceID:     "dspace",
		ItemSelector: "div.artifact-description",
		BaseURL:      "https://repo.example.org",
		Fields: map[string]source.FieldRule{
			"title":   {Selector: "h4.artifact-title a", Required: true},
			"link":    {Selector: "h4.artifact-title a", Attr: "href"},
			"authors": {Selector: "span.author", All: true},
			"date":    {Selector: "span.date"},
		},
	}
}

func TestScrapeSourceAdapt(t *testing.T) {
	t.Parallel()

	recs, skipped, err := dspaceSource().Adapt(scrapeResult(listingHTML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	// The element without a title is dropped, not fatal.
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}

	first := recs[0].Fields
	if first["title"] != "Urban Health Outcomes" {
		t.Fatalf("title = %v", first["title"])
	}
	if first["link"] != "https://repo.example.org/handle/123/1" {
		t.Fatalf("relative href not resolved: %v", first["link"])
	}
	authors, ok := first["authors"].([]any)
	if !ok || len(authors) != 2 || authors[0] != "Wanjiru, A." {
		t.Fatalf("authors = %#v", first["authors"])
	}

	second := recs[1].Fields
	if second["link"] != "https://other.example.org/2" {
		t.Fatalf("absolute href rewritten: %v", second["link"])
	}
	if _, present := second["authors"]; present {
		t.Fatalf("missing optional field should be absent, got %v", second["authors"])
	}
}

func TestScrapeSourceNoMatchesYieldsNoRecords(t *testing.T) {
	t.Parallel()

	recs, skipped, err := dspaceSource().Adapt(scrapeResult(`<html><body><p>empty page</p></body></html>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 0 || skipped != 0 {
		t.Fatalf("got %d records %d skipped, want none", len(recs), skipped)
	}
}

func TestScrapeSourceTruncatedHTMLStillParses(t *testing.T) {
	t.Parallel()

	// html parsers are forgiving; a truncated document is not a parse error.
	recs, _, err := dspaceSource().Adapt(scrapeResult(`<div class="artifact-description"><h4 class="artifact-title"><a href="/x">Partial`))
	if err != nil {
		var pe *source.ParseError
		if errors.As(err, &pe) {
			t.Fatalf("truncated html treated as parse error: %v", err)
		}
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 || recs[0].Fields["title"] != "Partial" {
		t.Fatalf("unexpected records: %#v", recs)
	}
}
