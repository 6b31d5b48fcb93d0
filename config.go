package payrelay

import (
	"fmt"
	"time"
)

// TimeoutConfig bounds payment network calls. Without these, a facilitator
// that never responds would hang the calling flow for as long as the
// transport allows.
type TimeoutConfig struct {
	// SubmitTimeout is the maximum time to wait for a settlement submission.
	SubmitTimeout time.Duration

	// HealthTimeout is the maximum time to wait for a health probe.
	HealthTimeout time.Duration

	// RequestTimeout is the overall timeout for other facilitator requests.
	RequestTimeout time.Duration
}

// DefaultTimeouts provides sensible defaults. Settlement waits for an
// on-chain transaction, so its bound is much larger than the probes.
var DefaultTimeouts = TimeoutConfig{
	SubmitTimeout:  60 * time.Second,
	HealthTimeout:  5 * time.Second,
	RequestTimeout: 30 * time.Second,
}

// WithSubmitTimeout returns a copy with an updated submit timeout.
func (tc TimeoutConfig) WithSubmitTimeout(d time.Duration) TimeoutConfig {
	tc.SubmitTimeout = d
	return tc
}

// WithHealthTimeout returns a copy with an updated health timeout.
func (tc TimeoutConfig) WithHealthTimeout(d time.Duration) TimeoutConfig {
	tc.HealthTimeout = d
	return tc
}

// WithRequestTimeout returns a copy with an updated request timeout.
func (tc TimeoutConfig) WithRequestTimeout(d time.Duration) TimeoutConfig {
	tc.RequestTimeout = d
	return tc
}

// Validate ensures timeout values are usable.
func (tc TimeoutConfig) Validate() error {
	if tc.SubmitTimeout <= 0 {
		return fmt.Errorf("submit timeout must be positive, got %v", tc.SubmitTimeout)
	}
	if tc.HealthTimeout <= 0 {
		return fmt.Errorf("health timeout must be positive, got %v", tc.HealthTimeout)
	}
	if tc.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", tc.RequestTimeout)
	}
	return nil
}
