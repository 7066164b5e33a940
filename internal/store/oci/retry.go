package oci

import (
	"context"
	"errors"
	"time"

	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
)

const retryBase = 500 * time.Millisecond

// retry runs fn up to maxAttempts times with exponential backoff. Errors the
// registry reports as permanent (unknown manifest, denied, ...) are returned
// on the first attempt.
func retry[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := range max(maxAttempts, 1) {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !temporary(err) {
			return zero, err
		}
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * retryBase // 500ms, 1s, 2s, 4s...
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}

func temporary(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var terr *transport.Error
	if errors.As(err, &terr) {
		return terr.Temporary()
	}
	// Connection-level failures carry no registry diagnostics.
	return true
}
