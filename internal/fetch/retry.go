//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package fetch holds the pieces of the fetch boundary that belong to
// this process: a single uniform retry policy for collaborators that talk
// to flaky externals, instead of ad hoc sleep loops at every call site.
package fetch

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy retries an operation with exponential backoff.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the pause after the first failure.
	BaseDelay time.Duration

	// Multiplier scales the delay after each failure.
	Multiplier float64
}

// DefaultRetryPolicy matches the fetchers' historical behavior: three
// attempts with a doubling pause.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
	}
}

// Do runs op until it succeeds, attempts run out, or the context is
// cancelled. The last error is returned wrapped with the attempt count.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if p.Multiplier > 0 {
			delay = time.Duration(float64(delay) * p.Multiplier)
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}
