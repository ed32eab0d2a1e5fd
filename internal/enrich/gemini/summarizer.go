// Package gemini generates row summaries with the Gemini API. The
// annotation pass is optional: the pipeline runs unchanged without an API
// key.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/scholarpipe/harvester/internal/enrich"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

type Summarizer struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Summarizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Summarizer{
		client: client,
		model:  strings.TrimSpace(cfg.Model),
	}, nil
}

type responseSchema struct {
	Summary string `json:"summary"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary": {Type: genai.TypeString},
	},
	Required: []string{"summary"},
}

func (s *Summarizer) Summarize(ctx context.Context, title, abstract string) (enrich.Summary, error) {
	base := enrich.Summary{Model: s.model}
	title = strings.TrimSpace(title)
	if title == "" {
		return base, errors.New("empty title")
	}

	resp, err := s.client.Models.GenerateContent(
		ctx,
		s.model,
		genai.Text(buildPrompt(title, abstract)),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   outputSchema,
		},
	)
	if err != nil {
		return base, classifyErr(err)
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		return base, fmt.Errorf("gemini: parse structured json: %w", err)
	}

	return enrich.Summary{
		Text:  strings.TrimSpace(parsed.Summary),
		Model: s.model,
	}, nil
}

func buildPrompt(title, abstract string) string {
	// Title and abstract are already public material from the harvested
	// sources; nothing else goes into the prompt.
	return strings.TrimSpace(`
You summarize research outputs for a content repository. Given a title and
abstract, write one plain-language sentence (max 40 words) describing what
the work is about.

Return ONLY a single JSON object with one key:
- summary (string)

Title: ` + title + `
Abstract: ` + strings.TrimSpace(abstract) + `
`)
}

func classifyErr(err error) error {
	// Wrap transient failures so the worker pool will retry with backoff.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 {
			// Quota errors retry on a tighter budget than the pool default.
			return &enrich.LimitedTransientError{Err: err, ExtraRetries: 1}
		}
		if apiErr.Code/100 == 5 {
			return &enrich.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &enrich.TransientError{Err: err}
	}
	return err
}
