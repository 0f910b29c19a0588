// Package retry provides the bounded-retry combinator shared by the
// model-calling stages. There is no backoff: the retried calls are
// multi-second LLM requests, so an immediate re-send is already spaced
// out by the failed attempt itself.
package retry

import (
	"context"
	"errors"
	"fmt"
)

// Permanent wraps an error so Do stops retrying and returns it as-is.
type Permanent struct {
	Err error
}

func (p Permanent) Error() string { return p.Err.Error() }

func (p Permanent) Unwrap() error { return p.Err }

// Fatal marks err as non-retryable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return Permanent{Err: err}
}

// Do invokes fn up to attempts times, stopping early on success, on a
// Permanent error, or on context cancellation. The returned error is the
// last attempt's error wrapped with the attempt count.
func Do[T any](ctx context.Context, attempts int, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		return zero, errors.New("retry: attempts must be > 0")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		out, err := fn(ctx, attempt)
		if err == nil {
			return out, nil
		}

		var perm Permanent
		if errors.As(err, &perm) {
			return zero, perm.Err
		}
		lastErr = err
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
