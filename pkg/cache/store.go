package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultRetainStale is how long an expired entry is kept for revalidation.
const DefaultRetainStale = 10 * time.Minute

// Store caches backend pages in Redis. Expired entries are kept for a
// while so their ETag can be used for a conditional request.
type Store struct {
	redis       *redis.Client
	retainStale time.Duration
}

// NewStore creates a page cache on top of a Redis client.
// A retainStale of zero means DefaultRetainStale.
func NewStore(redisClient *redis.Client, retainStale time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if retainStale <= 0 {
		retainStale = DefaultRetainStale
	}
	return &Store{
		redis:       redisClient,
		retainStale: retainStale,
	}
}

// Get retrieves an entry by key. The entry may be expired; callers check
// IsExpired and revalidate. Returns ErrCacheMiss if the key doesn't exist.
func (s *Store) Get(ctx context.Context, key PageKey) (*Entry, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		CacheHits.WithLabelValues("stale").Inc()
	} else {
		CacheHits.WithLabelValues("fresh").Inc()
	}

	return &entry, nil
}

// Set stores an entry. Redis drops it once it has been stale for longer
// than the store's retention.
func (s *Store) Set(ctx context.Context, key PageKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	// Nothing to revalidate against, don't keep it past expiry
	ttl := entry.TTL()
	if entry.HasValidator() {
		ttl += s.retainStale
	}
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheWrittenBytes.Add(float64(len(data)))
	return nil
}

// Delete removes an entry.
func (s *Store) Delete(ctx context.Context, key PageKey) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Refresh extends an entry after a 304 Not Modified response.
func (s *Store) Refresh(ctx context.Context, key PageKey, newExpires time.Time) (*Entry, error) {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	entry.Expires = newExpires
	if err := s.Set(ctx, key, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Purge removes every cached page of an endpoint and returns how many
// entries were deleted.
func (s *Store) Purge(ctx context.Context, endpoint string) (int, error) {
	iter := s.redis.Scan(ctx, 0, endpointPrefix(endpoint)+"*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("purge").Inc()
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		CacheErrors.WithLabelValues("purge").Inc()
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return len(keys), nil
}
