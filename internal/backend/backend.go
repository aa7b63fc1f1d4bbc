// Package backend serves a synthetic paged collection over HTTP. It backs
// the serve command and the HTTP client tests.
package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Record is one element of the collection.
type Record struct {
	ID    string `json:"id"`
	Index int64  `json:"index"`
	Title string `json:"title"`
}

// Options shape the collection and the server's behaviour.
type Options struct {
	// Size is the number of records in the collection.
	Size int64

	// MaxPageSize caps the limit of a single request. Zero means no cap.
	MaxPageSize int64

	// HideTotal omits the X-Total-Count header.
	HideTotal bool

	// Latency is added to every response.
	Latency time.Duration

	// MaxAge is sent as Cache-Control max-age.
	MaxAge time.Duration

	// Budget is the number of requests allowed per BudgetWindow and is
	// reported in X-RateLimit-* headers. Zero disables the headers.
	Budget       int
	BudgetWindow time.Duration
}

// Request is a request the server has seen.
type Request struct {
	Offset      int64
	Limit       int64
	Conditional bool
}

// Server is the paged collection handler.
type Server struct {
	opts   Options
	logger zerolog.Logger

	mu          sync.Mutex
	version     int
	failures    []int
	requests    []Request
	used        int
	windowStart time.Time
}

// New creates a server.
func New(opts Options, logger zerolog.Logger) *Server {
	if opts.BudgetWindow <= 0 {
		opts.BudgetWindow = time.Minute
	}
	return &Server{
		opts:        opts,
		logger:      logger,
		windowStart: time.Now(),
	}
}

// FailNext makes the next n requests fail with status.
func (s *Server) FailNext(n int, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failures = append(s.failures, status)
	}
}

// Bump changes every record's content, invalidating all ETags.
func (s *Server) Bump() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
}

// Requests returns the requests seen so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", 25)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.opts.MaxPageSize > 0 && limit > s.opts.MaxPageSize {
		http.Error(w, fmt.Sprintf("limit must be <= %d", s.opts.MaxPageSize), http.StatusBadRequest)
		return
	}

	if s.opts.Latency > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(s.opts.Latency):
		}
	}

	conditional := r.Header.Get("If-None-Match") != ""

	s.mu.Lock()
	s.requests = append(s.requests, Request{Offset: offset, Limit: limit, Conditional: conditional})
	s.writeBudgetLocked(w.Header())
	var failure int
	if len(s.failures) > 0 {
		failure = s.failures[0]
		s.failures = s.failures[1:]
	}
	version := s.version
	s.mu.Unlock()

	s.logger.Debug().
		Int64("offset", offset).
		Int64("limit", limit).
		Bool("conditional", conditional).
		Msg("Serving page")

	if failure != 0 {
		http.Error(w, http.StatusText(failure), failure)
		return
	}

	etag := fmt.Sprintf(`"v%d-%d-%d"`, version, offset, limit)
	w.Header().Set("ETag", etag)
	if s.opts.MaxAge > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", int(s.opts.MaxAge.Seconds())))
	}
	if !s.opts.HideTotal {
		w.Header().Set("X-Total-Count", strconv.FormatInt(s.opts.Size, 10))
	}

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.page(offset, limit, version)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode page")
	}
}

func (s *Server) page(offset, limit int64, version int) []Record {
	records := make([]Record, 0)
	for i := offset; i < offset+limit && i < s.opts.Size; i++ {
		title := fmt.Sprintf("Item %d", i)
		if version > 0 {
			title = fmt.Sprintf("Item %d (rev %d)", i, version)
		}
		records = append(records, Record{ID: strconv.FormatInt(i, 10), Index: i, Title: title})
	}
	return records
}

func (s *Server) writeBudgetLocked(h http.Header) {
	if s.opts.Budget <= 0 {
		return
	}

	now := time.Now()
	if now.Sub(s.windowStart) >= s.opts.BudgetWindow {
		s.windowStart = now
		s.used = 0
	}
	s.used++

	remaining := s.opts.Budget - s.used
	if remaining < 0 {
		remaining = 0
	}
	reset := s.windowStart.Add(s.opts.BudgetWindow).Sub(now)

	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.Itoa(int(reset.Seconds())+1))
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}
