// Package mocksource implements fake upstream content sources for local
// harness runs and tests: a JSON works API with cursor-free page
// pagination, and an HTML repository listing page.
package mocksource

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Work is a single record served by the works API.
type Work struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors,omitempty"`
	Date     string   `json:"publication_date,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	URL      string   `json:"url,omitempty"`
	Journal  string   `json:"journal,omitempty"`
	Cited    int      `json:"cited_by_count,omitempty"`
}

// Item is a single entry rendered into the HTML repository listing.
type Item struct {
	Title   string
	Authors string
	Date    string
	Href    string
}

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
	Query  string
}

// Server serves the fake sources. Zero value is not usable; use New.
type Server struct {
	mu    sync.Mutex
	calls []Call

	works    []Work
	pageSize int
	items    []Item

	// failuresLeft counts requests (across all endpoints) that still fail
	// with failStatus before the server starts answering normally.
	failuresLeft int
	failStatus   int
	retryAfter   string
}

// New constructs a mock server with no records loaded.
func New() *Server {
	return &Server{pageSize: 25}
}

// SetWorks replaces the records served by the works API.
func (s *Server) SetWorks(works []Work) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.works = append([]Work(nil), works...)
}

// SetPageSize sets the works API page size. Values below 1 are ignored.
func (s *Server) SetPageSize(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

// SetItems replaces the entries rendered on the repository listing page.
func (s *Server) SetItems(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]Item(nil), items...)
}

// FailNext makes the next n requests fail with the given status code. A
// Retry-After header in seconds is included when retryAfterSeconds > 0.
func (s *Server) FailNext(n, status, retryAfterSeconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failuresLeft = n
	s.failStatus = status
	s.retryAfter = ""
	if retryAfterSeconds > 0 {
		s.retryAfter = strconv.Itoa(retryAfterSeconds)
	}
}

// Handler returns an http.Handler that serves the mock sources.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/works", s.handleWorks)
	mux.HandleFunc("/repository/recent-submissions", s.handleListing)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
}

// maybeFail consumes one injected failure if any remain. It reports whether
// the response has already been written.
func (s *Server) maybeFail(w http.ResponseWriter) bool {
	s.mu.Lock()
	if s.failuresLeft <= 0 {
		s.mu.Unlock()
		return false
	}
	s.failuresLeft--
	status := s.failStatus
	retryAfter := s.retryAfter
	s.mu.Unlock()

	if retryAfter != "" {
		w.Header().Set("Retry-After", retryAfter)
	}
	http.Error(w, http.StatusText(status), status)
	return true
}

type worksPage struct {
	Meta struct {
		Count   int `json:"count"`
		Page    int `json:"page"`
		PerPage int `json:"per_page"`
	} `json:"meta"`
	Results []Work `json:"results"`
}

func (s *Server) handleWorks(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.maybeFail(w) {
		return
	}

	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return
		}
		page = n
	}

	s.mu.Lock()
	works := s.works
	perPage := s.pageSize
	s.mu.Unlock()

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(works) {
		start = len(works)
	}
	if end > len(works) {
		end = len(works)
	}

	var resp worksPage
	resp.Meta.Count = len(works)
	resp.Meta.Page = page
	resp.Meta.PerPage = perPage
	resp.Results = works[start:end]
	if resp.Results == nil {
		resp.Results = []Work{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.maybeFail(w) {
		return
	}

	s.mu.Lock()
	items := s.items
	s.mu.Unlock()

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><title>Recent Submissions</title></head><body>\n")
	b.WriteString(`<div class="discovery-result-results">` + "\n")
	for _, it := range items {
		b.WriteString(`<div class="artifact-description">` + "\n")
		fmt.Fprintf(&b, `  <h4 class="artifact-title"><a href="%s">%s</a></h4>`+"\n", htmlEscape(it.Href), htmlEscape(it.Title))
		if it.Authors != "" {
			fmt.Fprintf(&b, `  <span class="author">%s</span>`+"\n", htmlEscape(it.Authors))
		}
		if it.Date != "" {
			fmt.Fprintf(&b, `  <span class="date">%s</span>`+"\n", htmlEscape(it.Date))
		}
		b.WriteString("</div>\n")
	}
	b.WriteString("</div>\n</body></html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
