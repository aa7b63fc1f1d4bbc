// Package metrics exposes the Prometheus registry shared by all pagewindow
// packages. Metrics are defined in their respective packages (paging,
// client, cache, ratelimit, pagination) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all pagewindow metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer Handler serves from.
var Gatherer = prometheus.DefaultGatherer

// Handler returns an HTTP handler serving all registered metrics in the
// Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Window Metrics (pkg/paging):
//   - pagewindow_fetches_total{engine, outcome} (Counter): Page fetches (success, error, superseded)
//   - pagewindow_fetch_duration_seconds{engine} (Histogram): Completed fetch duration
//   - pagewindow_reconciliations_total{engine, result} (Counter): Reconciliations (fetch, noop)
//   - pagewindow_held_items{engine} (Gauge): Items held by the engine
//
// Batch Metrics (pkg/pagination):
//   - pagewindow_batch_chunks_total{outcome} (Counter): Chunk fetches (success, error, timeout, cancelled)
//
// Request Metrics (pkg/client):
//   - pagewindow_backend_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - pagewindow_backend_request_duration_seconds{endpoint} (Histogram): Request duration
//   - pagewindow_backend_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - pagewindow_backend_retries_total{error_class} (Counter): Retry attempts
//   - pagewindow_backend_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - pagewindow_backend_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Cache Metrics (pkg/cache):
//   - pagewindow_cache_hits_total{freshness} (Counter): Hits (fresh, stale)
//   - pagewindow_cache_misses_total (Counter): Misses
//   - pagewindow_cache_written_bytes_total (Counter): Bytes written
//   - pagewindow_cache_not_modified_total (Counter): 304 revalidations
//   - pagewindow_cache_errors_total{operation} (Counter): Redis errors (get, set, delete, purge)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pagewindow_ratelimit_remaining{backend} (Gauge): Remaining request budget
//   - pagewindow_ratelimit_blocks_total{backend} (Counter): Requests blocked
//   - pagewindow_ratelimit_throttles_total{backend} (Counter): Requests throttled
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(pagewindow_cache_hits_total[5m])) /
//   (sum(rate(pagewindow_cache_hits_total[5m])) + sum(rate(pagewindow_cache_misses_total[5m])))
//
//   # Superseded fetch ratio
//   rate(pagewindow_fetches_total{outcome="superseded"}[5m]) / rate(pagewindow_fetches_total[5m])
//
//   # P95 Backend Latency
//   histogram_quantile(0.95, rate(pagewindow_backend_request_duration_seconds_bucket[5m]))
