package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitpulse_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gitpulse_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitpulse_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"kind"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigForKind returns the retry configuration for an error kind.
func RetryConfigForKind(kind Kind) RetryConfig {
	switch kind {
	case KindNetwork:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case KindRateLimited:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    5 * time.Second,
			MaxBackoff:        60 * time.Second,
			BackoffMultiplier: 2.0,
		}
	default:
		return DefaultRetryConfig()
	}
}

// RetryWithBackoff executes fn with exponential backoff retry logic.
//
// The adapter itself never retries (one Fetch, one network call); this
// helper is for callers that want retry semantics around it. Backoff is
// jittered, context cancellation aborts the wait, and for rate-limited
// errors the provider-requested Retry-After is used as the backoff floor.
// Non-retryable errors (auth, parse, unknown) return immediately.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	var lastErr error
	var backoff time.Duration

	config := DefaultRetryConfig()

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		perr := AsError(err)

		if !perr.Retryable() {
			return lastErr
		}

		// Kind is only known after the first failure.
		config = RetryConfigForKind(perr.Kind)
		if backoff == 0 {
			backoff = config.InitialBackoff
		}
		if attempt >= config.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(perr.Kind)).Inc()

		// Jitter (±20% randomness); Retry-After is the floor when present.
		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		if perr.RetryAfter > wait {
			wait = perr.RetryAfter
		}
		retryBackoffSeconds.WithLabelValues(string(perr.Kind)).Observe(wait.Seconds())

		log.Debug().
			Str("kind", string(perr.Kind)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			log.Warn().
				Str("kind", string(perr.Kind)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(wait):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	kind := AsError(lastErr).Kind
	retryExhaustedTotal.WithLabelValues(string(kind)).Inc()
	log.Warn().
		Str("kind", string(kind)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
