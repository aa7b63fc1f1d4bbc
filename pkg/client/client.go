// Package client fetches pages of a collection from an HTTP backend with
// pacing, retries, conditional caching and rate limit gating.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/pagewindow/pkg/cache"
	"github.com/Sternrassler/pagewindow/pkg/logging"
	"github.com/Sternrassler/pagewindow/pkg/ratelimit"
)

// HeaderTotalCount carries the size of the full collection.
const HeaderTotalCount = cache.HeaderTotalCount

// Client requests windows of a paged collection.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	limiter     *rate.Limiter
	rateLimiter *ratelimit.Tracker
	cache       *cache.Store
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the backend's root, e.g. "http://localhost:8080".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Redis enables the page cache and shared rate limit tracking.
	// Nil disables both.
	Redis *redis.Client

	// RequestsPerSecond paces outgoing requests. Zero or less disables pacing.
	RequestsPerSecond float64
	Burst             int

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// RetainStale keeps expired cache entries for revalidation.
	RetainStale time.Duration

	// Retry picks the retry configuration per error class.
	// Nil means RetryConfigForErrorClass.
	Retry RetryPolicy
}

// DefaultConfig returns a default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:           baseURL,
		UserAgent:         userAgent,
		RequestsPerSecond: 10,
		Burst:             5,
		Timeout:           30 * time.Second,
		RetainStale:       cache.DefaultRetainStale,
		Retry:             RetryConfigForErrorClass,
	}
}

// Response is one fetched page.
type Response struct {
	// Body is the raw JSON body.
	Body []byte

	// TotalCount is the collection size, nil when the backend did not say.
	TotalCount *int64

	// ETag of the page, if any.
	ETag string

	// FetchedAt is when the body was received from the backend.
	FetchedAt time.Time

	// FromCache is true when the body came from the page cache.
	FromCache bool
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger("client").With().Str("backend", baseURL.Host).Logger()

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, burst),
		config:  cfg,
		logger:  logger,
	}

	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, baseURL.Host, logger)
		c.cache = cache.NewStore(cfg.Redis, cfg.RetainStale)
	}

	return c, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// FetchWindow requests records [offset, offset+limit) of a collection.
func (c *Client) FetchWindow(ctx context.Context, endpoint string, query url.Values, offset, limit int64) (*Response, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check rate limit budget
	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Rate limit check failed")
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().
				Str("endpoint", endpoint).
				Msg("Request blocked by rate limiter")
			requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return nil, ErrRequestBlocked
		}
	}

	// Step 2: Check cache
	key := cache.PageKey{Endpoint: endpoint, Offset: offset, Limit: limit, Query: query}
	var cached *cache.Entry
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			switch entry.Freshness(time.Now()) {
			case cache.Fresh:
				c.logger.Debug().
					Str("endpoint", endpoint).
					Int64("offset", offset).
					Int64("limit", limit).
					Msg("Serving page from cache")
				requestsTotal.WithLabelValues(endpoint, "cached").Inc()
				return c.responseFromEntry(entry, true), nil
			case cache.Revalidate:
				cached = entry
			}
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	target := c.windowURL(endpoint, query, offset, limit)

	// Step 3: Execute with retries
	var resp *http.Response
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func(attempt int) (ErrorClass, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("wait for request slot: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", "application/json")
		cache.AddConditionalHeaders(req, cached)

		c.logger.Debug().
			Str("endpoint", endpoint).
			Int64("offset", offset).
			Int64("limit", limit).
			Int("attempt", attempt).
			Bool("conditional", cached != nil).
			Msg("Executing page request")

		r, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return ErrorClassNetwork, &BackendError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
		}

		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromHeaders(ctx, r.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()

		if class := classifyStatus(r.StatusCode); class != "" {
			errorsTotal.WithLabelValues(string(class)).Inc()
			message := readErrorMessage(r)

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", r.StatusCode).
				Str("error_class", string(class)).
				Msg("Backend request error")

			return class, &BackendError{StatusCode: r.StatusCode, Class: class, Message: message}
		}

		resp = r
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Step 4: 304 Not Modified
	if resp.StatusCode == http.StatusNotModified {
		if cached == nil {
			return nil, &BackendError{StatusCode: resp.StatusCode, Class: ErrorClassServer, Message: "unexpected 304 without cached page"}
		}
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		cache.ConditionalRequests.Inc()

		refreshed, err := c.cache.Refresh(ctx, key, cache.ParseExpires(resp.Header))
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cached page")
			return c.responseFromEntry(cached, true), nil
		}
		return c.responseFromEntry(refreshed, true), nil
	}

	// Step 5: Fresh body
	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return nil, &BackendError{StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Message: "read body", Err: err}
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache page")
		} else {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Dur("ttl", entry.TTL()).
				Msg("Cached page")
		}
	}

	return c.responseFromEntry(entry, false), nil
}

// Purge drops every cached page of an endpoint. It is a no-op without Redis.
func (c *Client) Purge(ctx context.Context, endpoint string) error {
	if c.cache == nil {
		return nil
	}
	n, err := c.cache.Purge(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("purge page cache: %w", err)
	}
	c.logger.Debug().Str("endpoint", endpoint).Int("pages", n).Msg("Purged page cache")
	return nil
}

func (c *Client) windowURL(endpoint string, query url.Values, offset, limit int64) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(endpoint, "/")

	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("limit", strconv.FormatInt(limit, 10))
	u.RawQuery = q.Encode()

	return u.String()
}

func (c *Client) responseFromEntry(entry *cache.Entry, fromCache bool) *Response {
	resp := &Response{
		Body:      entry.Body,
		ETag:      entry.ETag,
		FetchedAt: entry.CachedAt,
		FromCache: fromCache,
	}

	total, err := entry.TotalCount()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Ignoring invalid total count header")
	}
	resp.TotalCount = total

	return resp
}

func readErrorMessage(resp *http.Response) string {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return resp.Status
}
