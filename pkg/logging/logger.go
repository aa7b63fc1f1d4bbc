// Package logging configures zerolog for pagewindow binaries and hands out
// component-scoped loggers.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs reconciliation steps and cache decisions.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs startup, shutdown and backend requests.
	LevelInfo LogLevel = "info"

	// LevelWarn logs failed fetches, retries and throttling.
	LevelWarn LogLevel = "warn"

	// LevelError logs failures that stop a component.
	LevelError LogLevel = "error"

	// LevelDisabled silences all output. Used by the terminal viewer,
	// which owns the screen.
	LevelDisabled LogLevel = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel `toml:"level"`

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool `toml:"pretty"`

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer `toml:"-"`
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a LogLevel to a zerolog.Level. Unknown values map
// to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger derived from the global one, tagged with the
// given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: reconciliation internals
//   - Requested window already held (no fetch)
//   - Fetch started / superseded / merged
//   - Cache hit/miss, conditional requests
//
// Info: normal operation
//   - Backend requests that succeeded
//   - Server and viewer startup/shutdown
//
// Warn: recoverable problems
//   - Failed page fetches (surface as error edges)
//   - Retries, throttling by the error budget
//   - Cache errors (fall back to the backend)
//
// Error: a component cannot continue
//   - Retries exhausted
//   - Error budget critical, requests blocked
//   - Configuration errors
//
// Context Fields:
//   - engine, engine_id: engine name and instance id
//   - requested, fetch: windows as [offset+limit]
//   - generation: reconciliation counter
//   - endpoint, status_code, error_class, duration: backend requests
