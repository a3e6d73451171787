// Package retry runs calls against flaky upstreams with exponential backoff.
package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Policy controls attempts and exponential backoff.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPolicy makes 3 attempts waiting 1s then 2s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Delay returns the wait after failed attempt n, n starting at 1.
func (p Policy) Delay(n int) time.Duration {
	d := p.InitialDelay << (n - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, retryable rejects the error or the attempts
// run out. onRetry, when set, observes each failure that will be retried.
func Do[T any](ctx context.Context, p Policy, retryable func(error) bool, fn func() (T, error), onRetry func(attempt int, wait time.Duration, err error)) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) || attempt == attempts {
			break
		}

		wait := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}

// IsRetryableStatus returns true for HTTP status codes worth retrying.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// IsTransientNetError reports connection failures and timeouts.
func IsTransientNetError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
