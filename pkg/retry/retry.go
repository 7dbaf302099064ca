// Package retry provides exponential backoff for the HTTP layer. Pipeline
// stages never retry in process: a failed item simply stays uncommitted and
// is picked up by the next scheduled run.
package retry

import (
	"context"
	stderrors "errors"
	"math/rand"
	"time"

	"igmonitor/pkg/errors"
)

// Operation is a function that may need retrying
type Operation func() error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay caps the backoff
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts
	Multiplier float64
	// Jitter randomizes each delay by up to this fraction
	Jitter float64
	// RetryIf decides whether an error is worth another attempt
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns retry settings suited to Instagram API calls
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    time.Minute,
		Multiplier:  2.0,
		Jitter:      0.2,
		RetryIf:     DefaultRetryIf,
	}
}

// DefaultRetryIf retries network and rate-limit errors only
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var perr *errors.Error
	if stderrors.As(err, &perr) {
		return errors.IsRetryable(perr.Type)
	}

	return false
}

// Do runs op, retrying per cfg until it succeeds, the error is not
// retryable, attempts run out, or ctx is done. Returns the last error.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		retryIf := cfg.RetryIf
		if retryIf == nil {
			retryIf = DefaultRetryIf
		}
		if attempt == cfg.MaxAttempts || !retryIf(lastErr) {
			return lastErr
		}

		wait := jittered(delay, cfg.Jitter)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}

func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	// Spread evenly across [1-jitter, 1+jitter]
	factor := 1 + jitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * factor)
}
