// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Config bounds a retry loop.
type Config struct {
	// MaxAttempts is the total number of calls, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the wait between attempts. Zero means no cap.
	MaxDelay time.Duration

	// Multiplier grows the delay after each attempt. Values below 1 are
	// treated as 1.
	Multiplier float64

	// Jitter randomizes each wait in [delay/2, delay).
	Jitter bool
}

// DefaultConfig retries three times starting at 100ms.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     time.Second,
	Multiplier:   2.0,
}

// Delay returns the wait after the given zero-based attempt.
func (c Config) Delay(attempt int) time.Duration {
	if c.InitialDelay <= 0 {
		return 0
	}
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.InitialDelay) * math.Pow(mult, float64(attempt))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if d > math.MaxInt64 {
		d = math.MaxInt64
	}
	delay := time.Duration(d)
	if c.Jitter && delay > 1 {
		half := delay / 2
		delay = half + time.Duration(rand.Int64N(int64(delay-half))) // #nosec G404 -- jitter only
	}
	return delay
}

// WithRetry calls fn until it succeeds, returns an error isRetryable
// rejects, the attempts run out or ctx ends. The last result and error are
// returned.
func WithRetry[T any](ctx context.Context, cfg Config, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		result T
		err    error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if serr := sleep(ctx, cfg.Delay(attempt-1)); serr != nil {
				return result, fmt.Errorf("%w (last error: %v)", serr, err)
			}
		}

		result, err = fn()
		if err == nil {
			return result, nil
		}
		if isRetryable != nil && !isRetryable(err) {
			return result, err
		}
	}
	return result, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
