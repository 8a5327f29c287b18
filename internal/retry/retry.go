// Package retry wraps store and upstream fetches with exponential backoff.
// Numeric logic never retries; only the I/O boundary does.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy controls how many attempts are made and how long to wait between them.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  10 * time.Second,
	}
}

// None performs a single attempt.
func None() Policy {
	return Policy{Attempts: 1}
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx is done.
// The last error is returned wrapped with op.
func Do(ctx context.Context, p Policy, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	backoff := p.BaseDelay

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == p.Attempts {
			break
		}

		logger.Warn("Retrying after failure",
			"op", op, "attempt", attempt, "backoff", backoff, "error", err)

		select {
		case <-time.After(backoff):
			backoff = backoff * 2
			if p.MaxDelay > 0 {
				backoff = min(backoff, p.MaxDelay)
			}
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, p Policy, logger *slog.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, logger, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
