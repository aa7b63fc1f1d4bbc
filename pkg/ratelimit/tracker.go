package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	budgetRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pagewindow_ratelimit_remaining",
		Help: "Requests remaining in the backend's current rate limit window",
	}, []string{"backend"})

	blocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagewindow_ratelimit_blocks_total",
		Help: "Total number of requests blocked due to an exhausted rate limit budget",
	}, []string{"backend"})

	throttlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagewindow_ratelimit_throttles_total",
		Help: "Total number of requests throttled due to a low rate limit budget",
	}, []string{"backend"})
)

// Redis hash fields of the stored state.
const (
	fieldRemaining  = "remaining"
	fieldResetAt    = "reset_at"
	fieldLastUpdate = "last_update"
)

// DefaultThrottleDelay is how long a request waits when the budget is low.
const DefaultThrottleDelay = time.Second

// Tracker monitors a backend's rate limit budget and gates requests.
type Tracker struct {
	redis         *redis.Client
	backend       string
	logger        zerolog.Logger
	throttleDelay time.Duration
}

// NewTracker creates a tracker for one backend. Trackers with the same
// backend name share state through Redis.
func NewTracker(redisClient *redis.Client, backend string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		backend:       backend,
		logger:        logger.With().Str("backend", backend).Logger(),
		throttleDelay: DefaultThrottleDelay,
	}
}

// SetThrottleDelay overrides DefaultThrottleDelay.
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// Key returns the Redis key holding the tracker's state.
func (t *Tracker) Key() string {
	return "pagewindow:ratelimit:" + t.backend
}

// GetState retrieves the current state from Redis.
// Returns a default healthy state if nothing was reported yet.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	fields, err := t.redis.HGetAll(ctx, t.Key()).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	if len(fields) == 0 {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return &State{
			Remaining:  DefaultRemaining,
			ResetAt:    time.Now().Add(60 * time.Second),
			LastUpdate: time.Now(),
			IsHealthy:  true,
		}, nil
	}

	remaining, err := strconv.Atoi(fields[fieldRemaining])
	if err != nil {
		return nil, fmt.Errorf("parse remaining: %w", err)
	}
	resetAt, err := strconv.ParseInt(fields[fieldResetAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse reset timestamp: %w", err)
	}
	lastUpdate, err := time.Parse(time.RFC3339Nano, fields[fieldLastUpdate])
	if err != nil {
		return nil, fmt.Errorf("parse last update: %w", err)
	}

	state := &State{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetAt, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()

	return state, nil
}

// ParseHeaders reads the rate limit headers of a response. ok is false
// when the backend sent no budget information.
func ParseHeaders(headers http.Header, now time.Time) (state State, ok bool, err error) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return State{}, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return State{}, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return State{}, false, errors.New(HeaderReset + " header missing")
	}

	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return State{}, false, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	state = State{
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth()
	return state, true, nil
}

// UpdateFromHeaders parses the rate limit headers and stores the state in Redis.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		// Backend does not report a budget for this response
		return nil
	}

	// The hash expires with the window so a stale block cannot outlive it
	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, t.Key(),
		fieldRemaining, state.Remaining,
		fieldResetAt, state.ResetAt.Unix(),
		fieldLastUpdate, state.LastUpdate.Format(time.RFC3339Nano),
	)
	pipe.ExpireAt(ctx, t.Key(), state.ResetAt.Add(time.Second))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	budgetRemaining.WithLabelValues(t.backend).Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit budget CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit budget WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may be sent now.
// Returns false when the budget is critical. In the warning range it waits
// for the throttle delay before allowing the request.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Rate limit budget critical - blocking request")

		blocksTotal.WithLabelValues(t.backend).Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("delay", t.throttleDelay).
			Msg("Rate limit budget low - throttling request")

		throttlesTotal.WithLabelValues(t.backend).Inc()

		timer := time.NewTimer(t.throttleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}
