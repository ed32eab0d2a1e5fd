// Package fetch performs single fetch attempts against remote hosts under
// per-host rate limits, classifying failures as transient or permanent so
// retry loops know what to do with them.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scholarpipe/harvester/pkg/pipeline/core"
	"github.com/scholarpipe/harvester/pkg/ratelimit"
)

// Kind selects which adapter interprets a fetched payload.
type Kind string

const (
	KindAPI    Kind = "api"
	KindScrape Kind = "scrape"
)

// Item is one unit of fetch work bound to a source and a query. Immutable
// once enqueued.
type Item struct {
	SourceID string
	Kind     Kind
	URL      string
	Query    url.Values
	Priority int
}

// Host returns the target host for rate limiting purposes.
func (it Item) Host() string {
	u, err := url.Parse(it.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Status classifies the outcome of a logical fetch.
type Status int

const (
	StatusOK Status = iota
	StatusTransient
	StatusPermanent
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTransient:
		return "transient"
	default:
		return "permanent"
	}
}

// Result is the raw payload of one logical fetch. Owned by the caller and
// discarded after adaptation.
type Result struct {
	Item        Item
	Status      Status
	Body        []byte
	ContentType string
	HTTPStatus  int
	Attempts    int
	Latency     time.Duration
	FetchedAt   time.Time
}

// Options configures the fetch client.
type Options struct {
	// UserAgent identifies the harvester to target hosts.
	UserAgent string

	// MaxBodyBytes caps how much of a response is read. <=0 means 8 MiB.
	MaxBodyBytes int64

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Client performs single fetch attempts. Every attempt passes through the
// rate limiter before the request goes out; retries re-acquire a permit.
type Client struct {
	http         *http.Client
	limits       *ratelimit.Table
	userAgent    string
	maxBodyBytes int64
}

// NewClient builds a fetch client over the given per-host limiter table.
func NewClient(limits *ratelimit.Table, opts Options) *Client {
	tr := opts.Transport
	if tr == nil {
		tr = http.DefaultTransport.(*http.Transport).Clone()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 8 << 20
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "harvester/1.0"
	}
	return &Client{
		// Per-attempt deadlines come from the caller's context; no client-wide
		// timeout on top of that.
		http:         &http.Client{Transport: tr},
		limits:       limits,
		userAgent:    ua,
		maxBodyBytes: maxBody,
	}
}

// Do performs exactly one fetch attempt for the item.
//
// Outcomes:
//   - network error, HTTP 5xx, HTTP 429: error is a *core.TransientError
//     (carrying any Retry-After hint) and the caller may retry;
//   - other HTTP 4xx or a malformed request: *core.PermanentError, never
//     retried;
//   - success: Result with Status OK and the response body.
func (c *Client) Do(ctx context.Context, item Item) (Result, error) {
	res := Result{Item: item, FetchedAt: time.Now().UTC()}

	u, err := url.Parse(strings.TrimSpace(item.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		res.Status = StatusPermanent
		return res, &core.PermanentError{Err: fmt.Errorf("source %s: invalid url %q", item.SourceID, item.URL)}
	}
	if len(item.Query) > 0 {
		q := u.Query()
		for k, vs := range item.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	permit, err := c.limits.Admit(ctx, u.Host)
	if err != nil {
		res.Status = StatusTransient
		return res, err
	}
	defer permit.Release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		res.Status = StatusPermanent
		return res, &core.PermanentError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	switch item.Kind {
	case KindAPI:
		req.Header.Set("Accept", "application/json")
	default:
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Status = StatusTransient
		return res, &core.TransientError{Err: fmt.Errorf("request %s: %w", u.Host, err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		res.Status = StatusTransient
		return res, &core.TransientError{Err: fmt.Errorf("read body from %s: %w", u.Host, err)}
	}

	res.HTTPStatus = resp.StatusCode
	res.ContentType = resp.Header.Get("Content-Type")

	switch {
	case resp.StatusCode/100 == 2:
		res.Status = StatusOK
		res.Body = body
		return res, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5:
		he := newHTTPError("fetch", resp, body)
		res.Status = StatusTransient
		return res, &core.TransientError{Err: he, RetryAfter: he.RetryAfter}
	default:
		res.Status = StatusPermanent
		return res, &core.PermanentError{Err: newHTTPError("fetch", resp, body)}
	}
}
