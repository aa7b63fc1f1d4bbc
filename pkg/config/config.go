// Package config loads pagewindow settings from an optional TOML file and
// PAGEWINDOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/pagewindow/pkg/cache"
	"github.com/Sternrassler/pagewindow/pkg/client"
	"github.com/Sternrassler/pagewindow/pkg/logging"
	"github.com/Sternrassler/pagewindow/pkg/pagination"
	"github.com/Sternrassler/pagewindow/pkg/paging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PAGEWINDOW_"

// Config aggregates the settings of every component.
type Config struct {
	Paging  PagingConfig  `toml:"paging"`
	Backend BackendConfig `toml:"backend"`
	Redis   RedisConfig   `toml:"redis"`
	Batch   BatchConfig   `toml:"batch"`
	Log     LogConfig     `toml:"log"`
}

// PagingConfig holds the engine constants.
type PagingConfig struct {
	Name             string `toml:"name"`
	PageSize         int64  `toml:"page_size"`
	InitialOffset    int64  `toml:"initial_offset"`
	InitialPageCount int64  `toml:"initial_page_count"`
	LoadTolerance    int64  `toml:"load_tolerance"`
}

// BackendConfig describes the HTTP backend and how to talk to it.
type BackendConfig struct {
	BaseURL           string   `toml:"base_url"`
	Endpoint          string   `toml:"endpoint"`
	UserAgent         string   `toml:"user_agent"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	Timeout           Duration `toml:"timeout"`

	// MaxAttempts overrides the per-class retry attempts when > 0.
	MaxAttempts int `toml:"max_attempts"`
}

// RedisConfig enables the page cache and shared rate limit state.
// An empty Addr disables both.
type RedisConfig struct {
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	RetainStale Duration `toml:"retain_stale"`
}

// BatchConfig configures chunked fetching. MaxChunk 0 disables it.
type BatchConfig struct {
	MaxChunk       int64    `toml:"max_chunk"`
	MaxConcurrency int      `toml:"max_concurrency"`
	Timeout        Duration `toml:"timeout"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Duration is a time.Duration written as a Go duration string in TOML,
// e.g. "30s" or "1m30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() Config {
	pg := paging.DefaultConfig()
	batch := pagination.DefaultConfig()

	return Config{
		Paging: PagingConfig{
			Name:             pg.Name,
			PageSize:         pg.PageSize,
			InitialOffset:    pg.InitialOffset,
			InitialPageCount: pg.InitialPageCount,
			LoadTolerance:    pg.LoadTolerance,
		},
		Backend: BackendConfig{
			BaseURL:           "http://localhost:8080",
			Endpoint:          "/v1/items",
			UserAgent:         "pagewindow/0.1.0",
			RequestsPerSecond: 10,
			Burst:             5,
			Timeout:           Duration(30 * time.Second),
		},
		Redis: RedisConfig{
			RetainStale: Duration(cache.DefaultRetainStale),
		},
		Batch: BatchConfig{
			MaxChunk:       0,
			MaxConcurrency: batch.MaxConcurrency,
			Timeout:        Duration(batch.Timeout),
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Load builds a configuration from Default, the TOML file at path (skipped
// when path is empty) and environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Paging.Name = getEnv("PAGING_NAME", c.Paging.Name)
	c.Backend.BaseURL = getEnv("BASE_URL", c.Backend.BaseURL)
	c.Backend.Endpoint = getEnv("ENDPOINT", c.Backend.Endpoint)
	c.Backend.UserAgent = getEnv("USER_AGENT", c.Backend.UserAgent)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	var errs []error
	c.Paging.PageSize = getEnvInt64("PAGE_SIZE", c.Paging.PageSize, &errs)
	c.Paging.LoadTolerance = getEnvInt64("LOAD_TOLERANCE", c.Paging.LoadTolerance, &errs)
	c.Batch.MaxChunk = getEnvInt64("BATCH_MAX_CHUNK", c.Batch.MaxChunk, &errs)
	c.Redis.DB = int(getEnvInt64("REDIS_DB", int64(c.Redis.DB), &errs))
	c.Backend.MaxAttempts = int(getEnvInt64("MAX_ATTEMPTS", int64(c.Backend.MaxAttempts), &errs))

	if v := os.Getenv(EnvPrefix + "REQUESTS_PER_SECOND"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREQUESTS_PER_SECOND: %w", EnvPrefix, err))
		} else {
			c.Backend.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv(EnvPrefix + "TIMEOUT"); v != "" {
		var d Duration
		if err := d.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err))
		} else {
			c.Backend.Timeout = d
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_PRETTY"); v != "" {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sLOG_PRETTY: %w", EnvPrefix, err))
		} else {
			c.Log.Pretty = pretty
		}
	}

	return errors.Join(errs...)
}

// Validate checks the values the components cannot default themselves.
func (c Config) Validate() error {
	if c.Paging.PageSize <= 0 {
		return fmt.Errorf("page size must be > 0 (got %d)", c.Paging.PageSize)
	}
	if c.Paging.InitialOffset < 0 {
		return fmt.Errorf("initial offset must be >= 0 (got %d)", c.Paging.InitialOffset)
	}
	if c.Paging.LoadTolerance < 0 {
		return fmt.Errorf("load tolerance must be >= 0 (got %d)", c.Paging.LoadTolerance)
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend base url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend base url must be http or https (got %q)", c.Backend.BaseURL)
	}
	if c.Backend.Endpoint == "" {
		return fmt.Errorf("backend endpoint is required")
	}
	if c.Backend.UserAgent == "" {
		return fmt.Errorf("backend user-agent is required")
	}

	if c.Batch.MaxChunk < 0 {
		return fmt.Errorf("batch max chunk must be >= 0 (got %d)", c.Batch.MaxChunk)
	}
	return nil
}

// EngineConfig returns the paging engine configuration.
func (c Config) EngineConfig() paging.Config {
	return paging.Config{
		Name:             c.Paging.Name,
		PageSize:         c.Paging.PageSize,
		InitialOffset:    c.Paging.InitialOffset,
		InitialPageCount: c.Paging.InitialPageCount,
		LoadTolerance:    c.Paging.LoadTolerance,
	}
}

// ClientConfig returns the HTTP client configuration using rc for caching
// and rate limit state. rc may be nil.
func (c Config) ClientConfig(rc *redis.Client) client.Config {
	cfg := client.DefaultConfig(c.Backend.BaseURL, c.Backend.UserAgent)
	cfg.Redis = rc
	cfg.RequestsPerSecond = c.Backend.RequestsPerSecond
	cfg.Burst = c.Backend.Burst
	cfg.Timeout = c.Backend.Timeout.Std()
	cfg.RetainStale = c.Redis.RetainStale.Std()

	if attempts := c.Backend.MaxAttempts; attempts > 0 {
		cfg.Retry = func(class client.ErrorClass) client.RetryConfig {
			retry := client.RetryConfigForErrorClass(class)
			retry.MaxAttempts = attempts
			return retry
		}
	}
	return cfg
}

// RedisOptions returns connection options, or nil when Redis is disabled.
func (c Config) RedisOptions() *redis.Options {
	if c.Redis.Addr == "" {
		return nil
	}
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// ChunkConfig returns the chunking configuration and whether chunking is
// enabled.
func (c Config) ChunkConfig() (pagination.Config, bool) {
	return pagination.Config{
		MaxChunk:       c.Batch.MaxChunk,
		MaxConcurrency: c.Batch.MaxConcurrency,
		Timeout:        c.Batch.Timeout.Std(),
	}, c.Batch.MaxChunk > 0
}

// LoggingConfig returns the logger configuration.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64, errs *[]error) int64 {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return defaultValue
	}
	return n
}
