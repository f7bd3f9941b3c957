package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// ErrRetriesExhausted wraps the last transient error once the attempt budget
// is spent. Callers treat it as "skip this item, continue the run".
var ErrRetriesExhausted = errors.New("retries exhausted")

// transientError marks an error as retryable regardless of its concrete type.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so the retry controller treats it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// browserDisconnectMarkers identify headless-browser failures that clear up
// on a fresh page load.
var browserDisconnectMarkers = []string{
	"websocket",
	"target closed",
	"target crashed",
	"connection reset",
	"broken pipe",
}

// IsTransient reports whether err is worth retrying. Network timeouts,
// connection resets and browser-driver disconnects are transient; malformed
// pages and programming errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *transientError
	if errors.As(err, &te) {
		return true
	}

	// Errors can classify themselves, e.g. HTTP status errors
	var tr interface{ Transient() bool }
	if errors.As(err, &tr) {
		return tr.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	// Per-attempt timeouts surface as deadline errors
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range browserDisconnectMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}

// Retry runs op up to maxAttempts times, sleeping baseDelay*2^(attempt-1)
// between attempts. Non-transient errors propagate immediately without
// further attempts. After the budget is spent the last error is returned
// wrapped in ErrRetriesExhausted.
func Retry[T any](ctx context.Context, maxAttempts int, baseDelay time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := baseDelay << (attempt - 1)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}
