package source

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/scholarpipe/harvester/pkg/fetch"
)

// FieldRule extracts one field out of a matched item element.
type FieldRule struct {
	// Selector is evaluated relative to the item element.
	Selector string
	// Attr takes an attribute value instead of the element text.
	Attr string
	// All collects every match into a list instead of taking the first.
	All bool
	// Required drops the whole record when the field is missing.
	Required bool
}

// ScrapeSource adapts HTML documents by selecting repeating elements.
type ScrapeSource struct {
	SourceID string

	// ItemSelector matches the repeating per-record elements.
	ItemSelector string

	// Fields maps raw field names to extraction rules. Missing optional
	// fields are recorded as absent; a record missing a required field is
	// dropped and counted.
	Fields map[string]FieldRule

	// BaseURL resolves relative href/src attribute values.
	BaseURL string
}

func (s *ScrapeSource) Adapt(res fetch.Result) ([]Record, int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, 0, &ParseError{SourceID: s.SourceID, Err: err}
	}

	var recs []Record
	skipped := 0
	doc.Find(s.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		fields, ok := s.extract(item)
		if !ok {
			skipped++
			return
		}
		recs = append(recs, Record{SourceID: s.SourceID, Fields: fields})
	})
	return recs, skipped, nil
}

func (s *ScrapeSource) extract(item *goquery.Selection) (map[string]any, bool) {
	fields := make(map[string]any, len(s.Fields))
	for name, rule := range s.Fields {
		val, found := s.extractField(item, rule)
		if !found {
			if rule.Required {
				return nil, false
			}
			continue
		}
		fields[name] = val
	}
	return fields, true
}

func (s *ScrapeSource) extractField(item *goquery.Selection, rule FieldRule) (any, bool) {
	sel := item.Find(rule.Selector)
	if rule.Selector == "" {
		sel = item
	}
	if sel.Length() == 0 {
		return nil, false
	}

	if rule.All {
		var vals []any
		sel.Each(func(_ int, el *goquery.Selection) {
			if v, ok := s.one(el, rule); ok {
				vals = append(vals, v)
			}
		})
		if len(vals) == 0 {
			return nil, false
		}
		return vals, true
	}

	return s.one(sel.First(), rule)
}

func (s *ScrapeSource) one(el *goquery.Selection, rule FieldRule) (any, bool) {
	var raw string
	if rule.Attr != "" {
		v, ok := el.Attr(rule.Attr)
		if !ok {
			return nil, false
		}
		raw = v
	} else {
		raw = el.Text()
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	if rule.Attr == "href" || rule.Attr == "src" {
		raw = s.resolveURL(raw)
	}
	return raw, true
}

func (s *ScrapeSource) resolveURL(raw string) string {
	if strings.Contains(raw, "://") || s.BaseURL == "" {
		return raw
	}
	base := strings.TrimRight(s.BaseURL, "/")
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return base + raw
}
