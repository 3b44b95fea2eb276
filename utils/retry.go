package utils

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy describes how an unreliable call is retried. Backoff grows
// linearly: attempt x BaseDelay. Sleep is injectable so tests run without
// real timers.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       func(time.Duration)
}

// DefaultRetryPolicy matches the store adapter contract: up to 3 attempts
// with linearly increasing backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Sleep:       time.Sleep,
	}
}

// Do runs op until it succeeds, attempts are exhausted, or ctx is done.
// The final error is returned wrapped with the attempt count.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = op(); lastErr == nil {
			return nil
		}
		if attempt < attempts {
			sleep(time.Duration(attempt) * p.BaseDelay)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
