// Package retry provides bounded exponential-backoff retry for operations
// whose failures are transient, such as facilitator requests. Settlement
// submissions are never retried through this package: a consumed nonce must
// not be resubmitted.
package retry

import (
	"context"
	"time"
)

// Config controls retry behavior.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier scales the delay between attempts.
	Multiplier float64
}

// WithRetry runs fn until it succeeds, the error is not retryable, attempts
// are exhausted, or ctx is done. The last result and error are returned.
func WithRetry[T any](ctx context.Context, cfg Config, retryable func(error) bool, fn func() (T, error)) (T, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := cfg.InitialDelay
	var result T
	var err error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		result, err = fn()
		if err == nil {
			return result, nil
		}
		if retryable != nil && !retryable(err) {
			return result, err
		}
	}

	return result, err
}
