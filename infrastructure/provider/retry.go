package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// retryPolicy drives exponential backoff for provider API calls. Every
// HTTP-backed provider shares the same schedule; what differs per
// provider is only the transient-error classification.
type retryPolicy struct {
	maxRetries   int
	initialDelay time.Duration
	factor       float64
}

func newRetryPolicy(maxRetries int, initialDelay time.Duration, factor float64) retryPolicy {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if initialDelay <= 0 {
		initialDelay = 2 * time.Second
	}
	if factor <= 0 {
		factor = 2.0
	}
	return retryPolicy{maxRetries: maxRetries, initialDelay: initialDelay, factor: factor}
}

// do runs fn up to maxRetries+1 times, sleeping with exponential backoff
// between attempts while transient classifies the failure as retryable.
// Context cancellation wins over the schedule at every point.
func (rp retryPolicy) do(ctx context.Context, transient func(error) bool, fn func() error) error {
	delay := rp.initialDelay
	var lastErr error

	for attempt := 0; attempt <= rp.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !transient(lastErr) {
			return lastErr
		}

		if attempt < rp.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * rp.factor)
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// transientStatus reports whether an HTTP status code signals a condition
// that may clear on its own: rate limiting or upstream server trouble.
func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// isNetTimeout reports whether err is a network-level timeout.
func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
