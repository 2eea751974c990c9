package retry

import (
	"context"
	"fmt"
	"time"
)

// Config holds configuration for retry logic
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Retryable decides whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool
}

// Once is the policy used for outbound actions and tracker writes: a single
// retry after delay.
func Once(delay time.Duration, retryable func(error) bool) Config {
	return Config{
		MaxRetries: 1,
		BaseDelay:  delay,
		MaxDelay:   delay,
		Retryable:  retryable,
	}
}

// Operation retries op with exponential backoff and returns the number of
// attempts made alongside the final error.
func Operation(ctx context.Context, cfg Config, op func(attempt int) error) (int, error) {
	var lastErr error
	delay := cfg.BaseDelay

	attempts := 0
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return attempts, lastErr
			}
			return attempts, ctx.Err()
		default:
		}

		attempts++
		err := op(attempt + 1)
		if err == nil {
			return attempts, nil
		}
		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return attempts, err
		}

		if attempt < cfg.MaxRetries {
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			if delay > 0 {
				select {
				case <-ctx.Done():
					return attempts, lastErr
				case <-time.After(delay):
				}
			}
			delay *= 2
		}
	}

	if cfg.MaxRetries == 0 {
		return attempts, lastErr
	}
	return attempts, fmt.Errorf("operation failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
