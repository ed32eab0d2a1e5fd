package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/scholarpipe/harvester/internal/enrich"
)

type tempNetErr struct{}

func (tempNetErr) Error() string   { return "temp net err" }
func (tempNetErr) Timeout() bool   { return false }
func (tempNetErr) Temporary() bool { return true }

func TestClassifyErr(t *testing.T) {
	const (
		passthrough = "passthrough"
		transient   = "transient"
		limited     = "limited"
	)
	tests := []struct {
		name string
		in   error
		want string
	}{
		{name: "nil", in: nil, want: passthrough},
		{name: "api_429", in: genai.APIError{Code: 429}, want: limited},
		{name: "api_503", in: genai.APIError{Code: 503}, want: transient},
		{name: "api_401", in: genai.APIError{Code: 401}, want: passthrough},
		{name: "net_temporary", in: tempNetErr{}, want: transient},
		{name: "wrapped_api_429", in: errors.New(genai.APIError{Code: 429}.Error()), want: passthrough},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyErr(tt.in)
			var te *enrich.TransientError
			var lte *enrich.LimitedTransientError
			kind := passthrough
			switch {
			case errors.As(got, &lte):
				kind = limited
			case errors.As(got, &te):
				kind = transient
			}
			if kind != tt.want {
				t.Fatalf("classified as %s, want %s (err=%T %v)", kind, tt.want, got, got)
			}
			if kind == limited && lte.MaxExtraRetries() < 1 {
				t.Fatalf("quota error carries no retry budget: %#v", lte)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt("Urban Health Outcomes", "A longitudinal study.")
	if !strings.Contains(prompt, "Urban Health Outcomes") {
		t.Fatalf("prompt missing title: %s", prompt)
	}
	if !strings.Contains(prompt, "A longitudinal study.") {
		t.Fatalf("prompt missing abstract: %s", prompt)
	}
	if !strings.Contains(prompt, "summary") {
		t.Fatalf("prompt missing output contract: %s", prompt)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(context.Background(), Config{Model: "gemini-2.5-flash"}); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := New(context.Background(), Config{APIKey: "k"}); err == nil {
		t.Fatal("expected error without model")
	}
}
