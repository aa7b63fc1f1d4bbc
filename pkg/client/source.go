package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/pagewindow/pkg/paging"
)

// PageMeta is the static data a Source attaches to each page.
type PageMeta struct {
	// ETag of the last fetched page.
	ETag string

	// FetchedAt is when the page was received from the backend.
	FetchedAt time.Time

	// FromCache is true when the page was served from the page cache.
	FromCache bool
}

// Source exposes one collection endpoint as a paging.DataSource whose
// records are decoded from a JSON array into S.
type Source[S any] struct {
	client   *Client
	endpoint string
	query    url.Values
}

// NewSource creates a data source for an endpoint. query is sent with
// every request next to offset and limit.
func NewSource[S any](c *Client, endpoint string, query url.Values) *Source[S] {
	return &Source[S]{
		client:   c,
		endpoint: endpoint,
		query:    query,
	}
}

// FetchPage implements paging.DataSource.
func (s *Source[S]) FetchPage(ctx context.Context, bounds paging.Bounds) (paging.Page[S, PageMeta], error) {
	resp, err := s.client.FetchWindow(ctx, s.endpoint, s.query, bounds.Offset, bounds.Limit)
	if err != nil {
		return paging.Page[S, PageMeta]{}, fmt.Errorf("fetch %s %s: %w", s.endpoint, bounds, err)
	}

	var records []S
	if err := json.Unmarshal(resp.Body, &records); err != nil {
		return paging.Page[S, PageMeta]{}, fmt.Errorf("%w: decode %s %s: %v", ErrInvalidResponse, s.endpoint, bounds, err)
	}
	if int64(len(records)) > bounds.Limit {
		return paging.Page[S, PageMeta]{}, fmt.Errorf("%w: %s returned %d records for %s", ErrInvalidResponse, s.endpoint, len(records), bounds)
	}

	return paging.Page[S, PageMeta]{
		Items:          records,
		TotalItemCount: resp.TotalCount,
		StaticData: PageMeta{
			ETag:      resp.ETag,
			FetchedAt: resp.FetchedAt,
			FromCache: resp.FromCache,
		},
	}, nil
}

// Purge drops the endpoint's cached pages so the next fetch goes to the backend.
func (s *Source[S]) Purge(ctx context.Context) error {
	return s.client.Purge(ctx, s.endpoint)
}
