// Package cache provides a Redis cache for backend page responses.
//
// Pages are stored under a deterministic key built from endpoint, offset,
// limit and the remaining query parameters. The store features:
//
// - Freshness from Cache-Control max-age or Expires
// - ETag and Last-Modified validators for conditional requests
// - Expired entries retained for revalidation, then dropped by Redis TTL
// - Purge of every cached page of an endpoint
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	store := cache.NewStore(redisClient, 0)
//
//	key := cache.PageKey{
//		Endpoint: "/v1/articles",
//		Offset:   25,
//		Limit:    25,
//	}
//
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from backend
//	}
//
// # Conditional Requests
//
//	switch entry.Freshness(time.Now()) {
//	case cache.Fresh:
//		// serve entry.Body
//	case cache.Revalidate:
//		cache.AddConditionalHeaders(req, entry)
//		// a 304 response means entry.Body is still current
//	case cache.Refetch:
//		// fetch the page again
//	}
//
// # Metrics
//
//   - pagewindow_cache_hits_total{freshness} - Cache hits (fresh or stale)
//   - pagewindow_cache_misses_total - Cache misses
//   - pagewindow_cache_written_bytes_total - Bytes written
//   - pagewindow_cache_not_modified_total - Conditional request successes
//   - pagewindow_cache_errors_total{operation} - Cache operation errors
package cache
