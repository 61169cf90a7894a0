package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config holds retry configuration. The policy is a pure function of the
// attempt count; resource-lifecycle actions (pool teardown and the like)
// belong in the caller's BeforeRetry hook, not here.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Retryable classifies an error. A nil classifier retries everything.
	Retryable func(error) bool

	// BeforeRetry runs after a retryable failure, before the backoff sleep.
	// attempt is 1-based and names the attempt that just failed.
	BeforeRetry func(attempt int, err error)
}

// DefaultConfig returns the data-layer retry configuration: 3 total attempts
// with delays doubling from one second.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
}

// Do executes fn with bounded exponential backoff. Non-retryable errors are
// surfaced immediately; after exhausting attempts the last error is returned.
func Do(ctx context.Context, config Config, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.Retryable != nil && !config.Retryable(err) {
			return err
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		if config.BeforeRetry != nil {
			config.BeforeRetry(attempt+1, err)
		}

		delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt)))
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", config.MaxAttempts, lastErr)
}
