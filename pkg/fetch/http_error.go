package fetch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/scholarpipe/harvester/pkg/pipeline/redact"
)

// apiErrorEnvelope covers the common {"error": ..., "message": ...} shape
// returned by the JSON APIs we harvest. Extra fields are ignored.
type apiErrorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HTTPError is a sanitized summary of a non-2xx response.
//
// Important: do not include raw response bodies here (scraped pages and API
// errors can carry tokens or personal data).
type HTTPError struct {
	Op         string
	Host       string
	StatusCode int
	Status     string
	APIError   string
	APIMessage string

	// RetryAfter is the parsed Retry-After header, when the server sent one.
	RetryAfter time.Duration

	// Snippet is a redacted, truncated hint for non-JSON error responses.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	parts := []string{
		fmt.Sprintf("fetch error: op=%s host=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Host), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.APIError) != "" {
		parts = append(parts, "error="+strings.TrimSpace(e.APIError))
	}
	if strings.TrimSpace(e.APIMessage) != "" {
		parts = append(parts, "message="+strings.TrimSpace(e.APIMessage))
	}
	if e.RetryAfter > 0 {
		parts = append(parts, "retryAfter="+e.RetryAfter.String())
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

// RetryAfterHint reports the server-provided delay so retry loops can honor
// it over their computed backoff.
func (e *HTTPError) RetryAfterHint() time.Duration {
	if e == nil {
		return 0
	}
	return e.RetryAfter
}

func newHTTPError(op string, resp *http.Response, body []byte) *HTTPError {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
		if resp.Request != nil && resp.Request.URL != nil {
			h.Host = resp.Request.URL.Host
		}
		h.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}

	// Best effort: parse the JSON error envelope.
	var env apiErrorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		h.APIError = strings.TrimSpace(env.Error)
		h.APIMessage = strings.TrimSpace(env.Message)
		if h.APIError != "" || h.APIMessage != "" {
			return h
		}
	}

	// Fallback: include a small, redacted hint only.
	h.Snippet = redactAndTruncate(body)
	return h
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		d := time.Until(at)
		if d > 0 {
			return d
		}
	}
	return 0
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	// Keep this small: response bodies can contain sensitive data.
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := redact.Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
