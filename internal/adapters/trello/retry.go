package trello

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/evanschultz/cardclock/internal/app"
)

// Default retry settings.
const (
	DefaultMaxAttempts = 5
	DefaultBaseBackoff = 500 * time.Millisecond
	DefaultMaxBackoff  = 30 * time.Second
)

// BackoffFunc returns the delay before the next attempt.
// attempt counts completed attempts (1 after the first failure); retryAfter is the server hint, zero when absent.
type BackoffFunc func(attempt int, retryAfter time.Duration) time.Duration

// RetryablePredicate reports whether a failed attempt may be retried.
// statusCode is zero when the request never produced a response.
type RetryablePredicate func(statusCode int, err error) bool

// RetryPolicy is applied uniformly to every request the client issues.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Retryable   RetryablePredicate
}

// DefaultRetryPolicy retries rate limits, server errors and transport failures with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     ExponentialBackoff(DefaultBaseBackoff, DefaultMaxBackoff),
		Retryable:   DefaultRetryable,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = def.Backoff
	}
	if p.Retryable == nil {
		p.Retryable = def.Retryable
	}
	return p
}

// ExponentialBackoff honours the server hint when present, else doubles base per attempt. Both are capped at maxDelay.
func ExponentialBackoff(base, maxDelay time.Duration) BackoffFunc {
	return func(attempt int, retryAfter time.Duration) time.Duration {
		delay := retryAfter
		if delay <= 0 {
			delay = base
			for i := 1; i < attempt && delay < maxDelay; i++ {
				delay *= 2
			}
		}
		if maxDelay > 0 && delay > maxDelay {
			delay = maxDelay
		}
		return delay
	}
}

// DefaultRetryable retries 429 and 5xx responses and transport errors, but never a cancelled context.
func DefaultRetryable(statusCode int, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return true
	case statusCode >= http.StatusInternalServerError:
		return true
	case statusCode == 0:
		return err != nil
	}
	return false
}

// parseRetryAfter decodes a Retry-After header given as delay seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	wait := at.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// RetryExhaustedError reports a request that failed on every allowed attempt.
type RetryExhaustedError struct {
	Endpoint string
	Attempts int
	Err      error
}

// Error returns the error message.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

// Unwrap exposes app.ErrFetchFailed and the last attempt's error.
func (e *RetryExhaustedError) Unwrap() []error {
	return []error{app.ErrFetchFailed, e.Err}
}

// StatusError is a non-success HTTP response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

// Error returns the error message.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("trello %s returned %d", e.Endpoint, e.StatusCode)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// Unwrap maps auth and missing-resource responses onto app sentinels.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return app.ErrAuthRequired
	case http.StatusNotFound:
		return app.ErrNotFound
	}
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
