package internal

import (
	"context"
	"time"
)

// RetryDelay is the delay before the second attempt. It doubles after every
// failed attempt (100ms, 200ms, 400ms, 800ms, ...).
var RetryDelay = 100 * time.Millisecond

func delay(attempt int) time.Duration {
	return RetryDelay * time.Duration(1<<attempt)
}

// Retry calls fn up to maxAttempts times with exponential backoff.
// Returns the last error if all attempts fail, or ctx.Err() if the context is
// cancelled before all attempts are exhausted.
func Retry(ctx context.Context, maxAttempts int, fn func() error) error {
	_, err := RetryResult(ctx, maxAttempts, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryResult is like Retry but for functions that return a value.
func RetryResult[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var result T
	var err error
	for i := 0; i < maxAttempts; i++ {
		if result, err = fn(); err == nil {
			return result, nil
		}
		if i < maxAttempts-1 {
			select {
			case <-time.After(delay(i)):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}
	return result, err
}
