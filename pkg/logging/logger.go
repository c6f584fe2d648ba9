// Package logging provides structured logging configuration using zerolog.
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
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

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

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request defaulting (merged headers, applied timeout)
//   - Continuation keys between pages
//   - Throttle waits and filter decisions
//
// Info: Normal operation events
//   - Login / logout
//   - Page fetched (endpoint, page, hits)
//   - Export completed (documents, pages, duration)
//   - Checkpoint saved / resumed
//
// Warn: Warning conditions that don't prevent operation
//   - Bulk outcomes with per-item failures (failOnError=false)
//   - Checkpoint missing on --resume (starting from the beginning)
//   - External retry attempts (pkg/retry)
//
// Error: Error conditions requiring attention
//   - Failed requests (transport or HTTP status)
//   - Aborted pagination (fetch failure mid-stream)
//   - Configuration errors (missing base URL)
//
// Context Fields:
//   - endpoint: request path
//   - status: HTTP status code
//   - duration: request duration
//   - error_class: error classification (client, server, rate_limit, network)
//   - page: page ordinal within a scan or listing
//   - documents: items emitted so far
//   - delay_ms: configured inter-item delay
//   - run_id: export run ULID
//   - checkpoint: checkpoint name for resumable exports
