package retry

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// Backoff selects how the wait between attempts grows.
type Backoff int

const (
	// Exponential multiplies the delay by Multiplier after each attempt.
	Exponential Backoff = iota
	// Linear waits InitialDelay, then 2x, 3x ... InitialDelay.
	Linear
)

// Config defines retry behavior
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, applied as +/- jitter on every wait
	Backoff      Backoff
}

// DefaultConfig returns defaults for connecting to the catalog database:
// 3 retries with 100ms initial delay, capped at 5s, doubling each time, with 10% jitter
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
		Backoff:      Exponential,
	}
}

// LinearConfig returns a config that retries maxRetries times, waiting step,
// 2*step, 3*step ... between attempts. No jitter.
func LinearConfig(maxRetries int, step time.Duration) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: step,
		MaxDelay:     time.Duration(maxRetries) * step,
		Backoff:      Linear,
	}
}

// applyJitter adds random jitter to a delay.
// Jitter is calculated as: delay +/- (delay * jitterFactor * random(-1 to +1))
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// delayFor returns the wait before retry number attempt (0-based).
func (c *Config) delayFor(attempt int) time.Duration {
	var d time.Duration
	switch c.Backoff {
	case Linear:
		d = c.InitialDelay * time.Duration(attempt+1)
	default:
		d = c.InitialDelay
		for i := 0; i < attempt; i++ {
			d = time.Duration(float64(d) * c.Multiplier)
			if c.MaxDelay > 0 && d > c.MaxDelay {
				break
			}
		}
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return applyJitter(d, c.JitterFactor)
}

// Do executes fn with retry logic, retrying every error.
// Returns nil on success, or last error after all retries exhausted
// Respects context cancellation during wait periods
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResultIf(ctx, cfg, alwaysRetry, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes fn and returns both result and error, retrying every error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return DoWithResultIf(ctx, cfg, alwaysRetry, fn)
}

// DoIf retries fn only while shouldRetry reports the error as transient.
// Any other error is returned immediately.
func DoIf(ctx context.Context, cfg *Config, shouldRetry func(error) bool, fn func() error) error {
	_, err := DoWithResultIf(ctx, cfg, shouldRetry, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResultIf is DoIf for functions that return a value.
func DoWithResultIf[T any](ctx context.Context, cfg *Config, shouldRetry func(error) bool, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}

		lastErr = err
		result = r // Keep last result even on error

		if !shouldRetry(err) {
			return result, err
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(cfg.delayFor(attempt)):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	return result, lastErr
}

func alwaysRetry(error) bool { return true }

// IsRetryable reports connection-level failures worth retrying while the
// catalog database comes up. Bad SQL and auth failures are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"timed out",
		"temporary failure",
		"too many connections",
		"i/o timeout",
		"network is unreachable",
		"server is in script upgrade mode",
		"login failed for user", // SQL Server rejects logins while a fresh container initializes
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
