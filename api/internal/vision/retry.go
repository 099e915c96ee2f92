package vision

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BackoffStep is the linear backoff unit between attempts.
var BackoffStep = 300 * time.Millisecond

// Retry runs fn up to attempts times while retryable(err) holds, sleeping
// attempt*BackoffStep between tries.
func Retry(ctx context.Context, attempts int, retryable func(error) bool, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts || !retryable(err) || ctx.Err() != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * BackoffStep):
		}
	}
	return err
}

// Complete runs one completion call under timeout and normalizes the error:
// deadline → ErrTimeout, upload failures unchanged, anything else → ErrBackend.
func Complete(ctx context.Context, timeout time.Duration, backend string, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := fn(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUploadFailed), errors.Is(err, ErrBackend), errors.Is(err, ErrTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrTimeout, backend, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrBackend, backend, err)
	}
}
