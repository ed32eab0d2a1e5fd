package source

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scholarpipe/harvester/pkg/fetch"
)

// APISource adapts structured (JSON) payloads.
type APISource struct {
	// SourceID stamps every extracted record.
	SourceID string

	// RecordsPath is a dot path from the payload root to the list of
	// entries (e.g. "results" or "message.items"). Empty means "find the
	// first plausible list of objects" using well-known paging keys.
	RecordsPath string

	// Required lists entry keys that must be present and non-empty; an
	// entry missing one is skipped, not an error.
	Required []string
}

func (s *APISource) Adapt(res fetch.Result) ([]Record, int, error) {
	var top any
	if err := json.Unmarshal(res.Body, &top); err != nil {
		return nil, 0, &ParseError{SourceID: s.SourceID, Err: err}
	}

	entries, err := s.entryList(top)
	if err != nil {
		return nil, 0, &ParseError{SourceID: s.SourceID, Err: err}
	}

	recs := make([]Record, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		if !s.hasRequired(obj) {
			skipped++
			continue
		}
		recs = append(recs, Record{SourceID: s.SourceID, Fields: obj})
	}
	return recs, skipped, nil
}

func (s *APISource) hasRequired(obj map[string]any) bool {
	for _, key := range s.Required {
		v, ok := obj[key]
		if !ok || v == nil {
			return false
		}
		if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
			return false
		}
	}
	return true
}

func (s *APISource) entryList(top any) ([]any, error) {
	path := strings.TrimSpace(s.RecordsPath)
	if path == "" {
		return extractEntryList(top)
	}

	cur := top
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q: segment %q is not an object", path, seg)
		}
		next, ok := obj[seg]
		if !ok {
			return nil, fmt.Errorf("path %q: missing key %q", path, seg)
		}
		cur = next
	}
	arr, ok := cur.([]any)
	if !ok {
		return nil, fmt.Errorf("path %q: value is not a list", path)
	}
	return arr, nil
}

// extractEntryList finds the list of entries in a payload without a
// configured path.
//
// API response shapes vary by provider. Known patterns include:
//   - [ {..entry..}, ... ]
//   - { "results": [ ... ], "meta": {...} }
//   - { "items": [ ... ], "nextPage": "..." }
//
// We keep this permissive and best-effort.
func extractEntryList(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case map[string]any:
		// Prefer well-known paging keys.
		for _, key := range []string{"results", "records", "values", "data", "items", "works"} {
			if inner, ok := t[key]; ok {
				if arr, ok := inner.([]any); ok {
					return arr, nil
				}
			}
		}

		// Fallback: pick the first array field that looks like a list of objects.
		for _, inner := range t {
			arr, ok := inner.([]any)
			if !ok {
				continue
			}
			for _, item := range arr {
				if _, ok := item.(map[string]any); ok {
					return arr, nil
				}
			}
		}
		return nil, fmt.Errorf("unexpected json object shape")
	default:
		return nil, fmt.Errorf("unexpected json type %T", v)
	}
}
