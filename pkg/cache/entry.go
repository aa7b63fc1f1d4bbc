// Package cache provides a Redis page cache with ETag support for
// conditional requests.
package cache

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// HeaderTotalCount carries the size of the full collection. It is stored
// with the page so a cache hit still reports the total.
const HeaderTotalCount = "X-Total-Count"

// Freshness says how a cached page may be used.
type Freshness int

const (
	// Fresh pages are served without asking the backend.
	Fresh Freshness = iota
	// Revalidate pages are expired but carry a validator, so the backend
	// can answer 304 Not Modified.
	Revalidate
	// Refetch pages are expired and must be fetched in full.
	Refetch
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Revalidate:
		return "revalidate"
	case Refetch:
		return "refetch"
	}
	return fmt.Sprintf("Freshness(%d)", int(f))
}

// Entry is a cached backend page response.
type Entry struct {
	// Body is the raw page body, a JSON array of records
	Body []byte `json:"body"`

	// ETag for If-None-Match
	ETag string `json:"etag"`

	// Expires is when the page becomes stale
	Expires time.Time `json:"expires"`

	// LastModified for If-Modified-Since, zero if the backend sent none
	LastModified time.Time `json:"last_modified"`

	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	CachedAt   time.Time   `json:"cached_at"`
}

// IsExpired returns true if the entry is stale.
func (e *Entry) IsExpired() bool {
	return e.expiredAt(time.Now())
}

func (e *Entry) expiredAt(now time.Time) bool {
	return now.After(e.Expires)
}

// TTL returns the time until expiration, 0 if already expired.
func (e *Entry) TTL() time.Duration {
	return max(time.Until(e.Expires), 0)
}

// HasValidator reports whether a conditional request can be made for the
// page (ETag or Last-Modified).
func (e *Entry) HasValidator() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}

// Freshness classifies the entry at the given time.
func (e *Entry) Freshness(now time.Time) Freshness {
	switch {
	case !e.expiredAt(now):
		return Fresh
	case e.HasValidator():
		return Revalidate
	default:
		return Refetch
	}
}

// TotalCount returns the collection size stored with the page, nil if the
// backend did not report one.
func (e *Entry) TotalCount() (*int64, error) {
	raw := e.Headers.Get(HeaderTotalCount)
	if raw == "" {
		return nil, nil
	}
	total, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", HeaderTotalCount, raw, err)
	}
	if total < 0 {
		return nil, fmt.Errorf("invalid %s %q: negative", HeaderTotalCount, raw)
	}
	return &total, nil
}
