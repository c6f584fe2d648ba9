// Package retry wraps one-shot calls in exponential backoff with jitter.
// The request executor in pkg/client never retries on its own; call sites
// that want retry opt in here, so pagination loops stay retry-free while
// commands like login can ride out transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/perimetra/gwadmin/pkg/client"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwadmin_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gwadmin_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwadmin_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Common errors returned by Do.
var (
	// ErrExhausted is returned when all retry attempts are exhausted.
	ErrExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during
	// a backoff wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// Config holds the retry policy.
type Config struct {
	// MaxAttempts is the total number of attempts (including the first).
	MaxAttempts int

	// InitialBackoff is the backoff before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// BackoffMultiplier is the exponential growth factor.
	BackoffMultiplier float64

	// Sleep waits between attempts. Injectable for tests; defaults to a
	// timer that honors context cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	if c.Sleep == nil {
		c.Sleep = defaultSleep
	}
	return c
}

// Do executes fn until it succeeds, the error is final, or the attempts
// are exhausted. Client-class errors (4xx other than 429) are final;
// server, rate-limit and network failures are retried with exponential
// backoff and ±20% jitter.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	cfg = cfg.withDefaults()

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Call succeeded after retry")
			}
			return result, nil
		}
		lastErr = err

		class := ClassOf(err)
		if !retryable(err) {
			return zero, err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(class)).Inc()

		// ±20% jitter keeps parallel scripts from retrying in lockstep.
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(jitter.Seconds())

		log.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying after backoff")

		if err := cfg.Sleep(ctx, jitter); err != nil {
			return zero, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	class := ClassOf(lastErr)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	log.Warn().
		Str("error_class", string(class)).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return zero, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, cfg.MaxAttempts, lastErr)
}

// ClassOf extracts the error class for logging and metric labels.
func ClassOf(err error) client.ErrorClass {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	var transportErr *client.TransportError
	if errors.As(err, &transportErr) {
		return client.ErrorClassNetwork
	}
	return ""
}

// retryable reports whether another attempt could help. Client errors are
// final; anything that never produced a valid answer is worth retrying.
func retryable(err error) bool {
	switch ClassOf(err) {
	case client.ErrorClassServer, client.ErrorClassRateLimit, client.ErrorClassNetwork:
		return true
	default:
		return false
	}
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
