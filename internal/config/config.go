// Package config loads the harvester's runtime configuration: a YAML
// source-definitions file (what to fetch, how to parse it, how to map it
// into the canonical schema) and environment variables for tuning knobs.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scholarpipe/harvester/pkg/fetch"
	"github.com/scholarpipe/harvester/pkg/normalize"
	"github.com/scholarpipe/harvester/pkg/ratelimit"
	"github.com/scholarpipe/harvester/pkg/source"
)

// Duration wraps time.Duration for YAML ("500ms", "2s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Limits is one host's request budget.
type Limits struct {
	MaxConcurrent int      `yaml:"max_concurrent"`
	MinInterval   Duration `yaml:"min_interval"`
}

// FieldSelector extracts one raw field from a scraped item element.
type FieldSelector struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr"`
	All      bool   `yaml:"all"`
	Required bool   `yaml:"required"`
}

// SourceSpec defines one harvest source.
type SourceSpec struct {
	ID       string            `yaml:"id"`
	Kind     string            `yaml:"kind"` // "api" or "scrape"
	URL      string            `yaml:"url"`
	Query    map[string]string `yaml:"query"`
	Priority int               `yaml:"priority"`

	// Pagination: when Pages > 1, one work item per page is enqueued with
	// PageParam set to the page number (1-based).
	Pages     int    `yaml:"pages"`
	PageParam string `yaml:"page_param"`

	// API sources.
	RecordsPath string   `yaml:"records_path"`
	Required    []string `yaml:"required"`

	// Scrape sources.
	ItemSelector string                   `yaml:"item_selector"`
	BaseURL      string                   `yaml:"base_url"`
	Selectors    map[string]FieldSelector `yaml:"selectors"`

	// Fields maps canonical column -> raw field name for the normalizer.
	Fields map[string]string `yaml:"fields"`
}

// Identity configures identity-key derivation and date resolution.
type Identity struct {
	Fields      []string `yaml:"fields"`
	DefaultYear int      `yaml:"default_year"`
}

// File is the parsed source-definitions file.
type File struct {
	Defaults Limits            `yaml:"defaults"`
	Hosts    map[string]Limits `yaml:"hosts"`
	Sources  []SourceSpec      `yaml:"sources"`
	Identity Identity          `yaml:"identity"`
	Required []string          `yaml:"required"`
}

// LoadFile reads and validates the source-definitions file. Validation
// failures here are fatal to the run before any fetch starts.
func LoadFile(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read sources file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("parse sources file: %w", err)
	}
	if err := f.validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

func (f File) validate() error {
	if len(f.Sources) == 0 {
		return fmt.Errorf("sources file defines no sources")
	}
	seen := make(map[string]struct{}, len(f.Sources))
	for _, s := range f.Sources {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return fmt.Errorf("source with empty id")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate source id %q", id)
		}
		seen[id] = struct{}{}

		u, err := url.Parse(strings.TrimSpace(s.URL))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("source %s: invalid url %q", id, s.URL)
		}
		switch s.Kind {
		case "api":
		case "scrape":
			if strings.TrimSpace(s.ItemSelector) == "" {
				return fmt.Errorf("source %s: scrape source requires item_selector", id)
			}
		default:
			return fmt.Errorf("source %s: unknown kind %q", id, s.Kind)
		}
		if len(s.Fields) == 0 {
			return fmt.Errorf("source %s: no field mapping", id)
		}
		canon := make([]string, 0, len(s.Fields))
		for c := range s.Fields {
			canon = append(canon, c)
		}
		if err := normalize.ValidateFields(canon); err != nil {
			return fmt.Errorf("source %s: %w", id, err)
		}
	}
	if len(f.Identity.Fields) > 0 {
		if err := normalize.ValidateFields(f.Identity.Fields); err != nil {
			return fmt.Errorf("identity: %w", err)
		}
	}
	if len(f.Required) > 0 {
		if err := normalize.ValidateFields(f.Required); err != nil {
			return fmt.Errorf("required: %w", err)
		}
	}
	return nil
}

// WorkItems expands the source definitions into the run's work plan.
func (f File) WorkItems() []fetch.Item {
	var items []fetch.Item
	for _, s := range f.Sources {
		kind := fetch.KindAPI
		if s.Kind == "scrape" {
			kind = fetch.KindScrape
		}
		pages := s.Pages
		if pages < 1 {
			pages = 1
		}
		for page := 1; page <= pages; page++ {
			q := url.Values{}
			for k, v := range s.Query {
				q.Set(k, v)
			}
			if pages > 1 {
				param := s.PageParam
				if param == "" {
					param = "page"
				}
				q.Set(param, strconv.Itoa(page))
			}
			items = append(items, fetch.Item{
				SourceID: s.ID,
				Kind:     kind,
				URL:      s.URL,
				Query:    q,
				Priority: s.Priority,
			})
		}
	}
	return items
}

// Adapters builds one adapter per source.
func (f File) Adapters() map[string]source.Adapter {
	out := make(map[string]source.Adapter, len(f.Sources))
	for _, s := range f.Sources {
		if s.Kind == "scrape" {
			fields := make(map[string]source.FieldRule, len(s.Selectors))
			for name, sel := range s.Selectors {
				fields[name] = source.FieldRule{
					Selector: sel.Selector,
					Attr:     sel.Attr,
					All:      sel.All,
					Required: sel.Required,
				}
			}
			out[s.ID] = &source.ScrapeSource{
				SourceID:     s.ID,
				ItemSelector: s.ItemSelector,
				Fields:       fields,
				BaseURL:      s.BaseURL,
			}
			continue
		}
		out[s.ID] = &source.APISource{
			SourceID:    s.ID,
			RecordsPath: s.RecordsPath,
			Required:    s.Required,
		}
	}
	return out
}

// NormalizerConfig assembles the per-source mapping tables.
func (f File) NormalizerConfig() normalize.Config {
	mappings := make(map[string]normalize.SourceMapping, len(f.Sources))
	for _, s := range f.Sources {
		m := make(normalize.SourceMapping, len(s.Fields))
		for canonical, raw := range s.Fields {
			m[strings.ToLower(strings.TrimSpace(canonical))] = raw
		}
		mappings[s.ID] = m
	}
	return normalize.Config{
		Mappings:       mappings,
		Required:       f.Required,
		IdentityFields: f.Identity.Fields,
		DefaultYear:    f.Identity.DefaultYear,
	}
}

// LimiterTable builds the per-host rate limiter table.
func (f File) LimiterTable() *ratelimit.Table {
	overrides := make(map[string]ratelimit.Budget, len(f.Hosts))
	for host, l := range f.Hosts {
		overrides[host] = ratelimit.Budget{
			MaxConcurrent: l.MaxConcurrent,
			MinInterval:   time.Duration(l.MinInterval),
		}
	}
	return ratelimit.NewTable(ratelimit.Budget{
		MaxConcurrent: f.Defaults.MaxConcurrent,
		MinInterval:   time.Duration(f.Defaults.MinInterval),
	}, overrides)
}
