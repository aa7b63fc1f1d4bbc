package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/pagewindow/pkg/paging"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxChunk is the largest window the wrapped source accepts in one call
	MaxChunk int64 `toml:"max_chunk"`

	// MaxConcurrency is the maximum number of chunks fetched in parallel
	MaxConcurrency int `toml:"max_concurrency"`

	// Timeout per chunk fetch
	Timeout time.Duration `toml:"timeout"`
}

// DefaultConfig returns a configuration matching a backend capped at one
// default page per request.
func DefaultConfig() Config {
	return Config{
		MaxChunk:       25,
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// BatchFetcher splits large windows into chunks the wrapped source can
// serve and fetches them concurrently. It implements paging.DataSource.
type BatchFetcher[S any, T any] struct {
	source paging.DataSource[S, T]
	config Config
	logger zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher around source
func NewBatchFetcher[S any, T any](source paging.DataSource[S, T], config Config, logger zerolog.Logger) *BatchFetcher[S, T] {
	if source == nil {
		panic("pagination: source cannot be nil")
	}
	if config.MaxChunk <= 0 {
		config.MaxChunk = 25
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher[S, T]{
		source: source,
		config: config,
		logger: logger,
	}
}

// Chunks splits bounds into consecutive windows of at most maxChunk items.
func Chunks(bounds paging.Bounds, maxChunk int64) []paging.Bounds {
	if bounds.IsEmpty() || maxChunk <= 0 {
		return nil
	}
	chunks := make([]paging.Bounds, 0, (bounds.Limit+maxChunk-1)/maxChunk)
	for offset := bounds.Offset; offset < bounds.End(); offset += maxChunk {
		chunks = append(chunks, paging.Bounds{
			Offset: offset,
			Limit:  min(maxChunk, bounds.End()-offset),
		})
	}
	return chunks
}

// FetchPage fetches bounds as one page. Windows larger than MaxChunk are
// fetched chunk by chunk and reassembled in order. A chunk that returns
// fewer items than asked marks the end of the sequence and drops every
// later chunk. Any chunk failure fails the whole fetch.
func (bf *BatchFetcher[S, T]) FetchPage(ctx context.Context, bounds paging.Bounds) (paging.Page[S, T], error) {
	chunks := Chunks(bounds, bf.config.MaxChunk)

	// Single chunk optimization
	if len(chunks) <= 1 {
		return bf.source.FetchPage(ctx, bounds)
	}

	start := time.Now()
	bf.logger.Debug().
		Stringer("bounds", bounds).
		Int("chunks", len(chunks)).
		Msg("Starting chunked fetch")

	pages := make([]paging.Page[S, T], len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			chunkCtx, cancel := context.WithTimeout(gctx, bf.config.Timeout)
			defer cancel()

			page, err := bf.source.FetchPage(chunkCtx, chunk)
			if err != nil {
				chunksTotal.WithLabelValues(chunkOutcome(err)).Inc()
				return fmt.Errorf("chunk %s: %w", chunk, err)
			}
			chunksTotal.WithLabelValues(outcomeSuccess).Inc()
			pages[i] = page
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		bf.logger.Warn().
			Err(err).
			Stringer("bounds", bounds).
			Msg("Chunked fetch failed")
		return paging.Page[S, T]{}, err
	}

	result := assemble(chunks, pages)

	bf.logger.Debug().
		Stringer("bounds", bounds).
		Int("items", len(result.Items)).
		Dur("duration", time.Since(start)).
		Msg("Chunked fetch complete")

	return result, nil
}

// assemble concatenates chunk pages up to and including the first short
// one. Static data comes from the first chunk; the total count from the
// last chunk used that reported one.
func assemble[S any, T any](chunks []paging.Bounds, pages []paging.Page[S, T]) paging.Page[S, T] {
	result := paging.Page[S, T]{StaticData: pages[0].StaticData}
	for i, page := range pages {
		items := page.Items
		if int64(len(items)) > chunks[i].Limit {
			items = items[:chunks[i].Limit]
		}
		result.Items = append(result.Items, items...)
		if page.TotalItemCount != nil {
			result.TotalItemCount = page.TotalItemCount
		}
		if int64(len(items)) < chunks[i].Limit {
			break
		}
	}
	return result
}

func chunkOutcome(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	case errors.Is(err, context.Canceled):
		return outcomeCancelled
	default:
		return outcomeError
	}
}
