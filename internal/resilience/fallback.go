package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Call is a fallible operation producing a value of type T.
type Call[T any] func(ctx context.Context) (T, error)

// FallbackOptions control timeout and retry behavior for InvokeWithFallback.
type FallbackOptions struct {
	// Timeout bounds each individual attempt. Zero means no per-attempt bound.
	Timeout time.Duration
	// MaxRetries is the number of retries of the primary before the
	// backup is tried. Zero means a single primary attempt.
	MaxRetries int
	// InitialInterval seeds the exponential backoff between retries.
	InitialInterval time.Duration
}

// InvokeWithFallback runs primary with timeout and exponential-backoff
// retries, then falls back to backup on exhaustion. Both calls return a
// typed result; the caller never sees retry mechanics.
func InvokeWithFallback[T any](ctx context.Context, primary, backup Call[T], opts FallbackOptions) (T, error) {
	attempt := func(call Call[T]) (T, error) {
		callCtx := ctx
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
		return call(callCtx)
	}

	interval := opts.InitialInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = interval

	result, err := backoff.Retry(ctx,
		func() (T, error) { return attempt(primary) },
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(opts.MaxRetries)+1),
	)
	if err == nil {
		return result, nil
	}

	if backup == nil {
		var zero T
		return zero, fmt.Errorf("primary failed, no backup: %w", err)
	}

	result, backupErr := attempt(backup)
	if backupErr != nil {
		var zero T
		return zero, fmt.Errorf("primary failed (%v), backup failed: %w", err, backupErr)
	}
	return result, nil
}
