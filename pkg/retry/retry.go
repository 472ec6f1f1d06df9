// Package retry provides the exponential backoff engine used by the retry
// layer: delay growth, jitter, and cancellation-aware waiting. Which errors
// are worth retrying is decided by the layer, not here.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config defines backoff behavior.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier is the factor the delay grows by after each attempt.
	Multiplier float64 `yaml:"multiplier"`

	// Jitter randomizes each delay by up to ±20% to avoid thundering herds.
	Jitter bool `yaml:"jitter"`
}

// DefaultConfig returns the backoff defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Backoff computes retry delays from a Config.
type Backoff struct {
	config Config
}

// New creates a Backoff, filling zero-valued fields with defaults.
func New(config Config) *Backoff {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	return &Backoff{config: config}
}

// MaxAttempts returns the configured attempt bound.
func (b *Backoff) MaxAttempts() int { return b.config.MaxAttempts }

// Delay returns the wait before attempt n+1, where n is the 1-based attempt
// that just failed. Without jitter the sequence grows monotonically until it
// hits MaxDelay.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.config.BaseDelay) * math.Pow(b.config.Multiplier, float64(attempt-1))
	if delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}
	if b.config.Jitter {
		delay += delay * 0.2 * (rand.Float64()*2 - 1)
	}
	return time.Duration(delay)
}

// Wait sleeps for the attempt's delay or until ctx is done, whichever comes
// first. Returns ctx.Err on cancellation so no further attempt is scheduled.
func (b *Backoff) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
