// Package retry wraps fallible operations with bounded exponential backoff.
package retry

import (
	"context"
	"math"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Executor runs operations with up to MaxAttempts sequential tries. Between
// a failed attempt N (counted from 0) and the next one it waits
// 2^N * BaseDelay. Every failure is retried the same way; the error returned
// after the final attempt is exactly that attempt's error.
type Executor struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New() *Executor {
	return &Executor{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		sleep:       sleepCtx,
	}
}

func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	base := e.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	sleep := e.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		delay := time.Duration(math.Pow(2, float64(attempt))) * base
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
