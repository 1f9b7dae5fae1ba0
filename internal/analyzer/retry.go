package analyzer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 500 * time.Millisecond
)

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// withRetry runs fn up to attempts times, sleeping base*2^(n-1) between
// attempts. Only errors wrapped by retryable are retried.
func withRetry(ctx context.Context, attempts int, base time.Duration, logger *zap.Logger, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			backoff := base * time.Duration(1<<(attempt-2))
			logger.Debug("retrying analyzer call", zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(lastErr))
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(lastErr, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var rerr *retryableError
		if !errors.As(lastErr, &rerr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}
