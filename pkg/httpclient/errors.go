package httpclient

import (
	"fmt"
	"net/http"
	"time"
)

// RetryableError is a workspace response the client gave up retrying:
// throttled serving endpoints, gateway hiccups, transient 5xx. RetryAfter
// carries the workspace's own backoff hint when the response included one.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("workspace request failed with HTTP %d: %s (retry after %v)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("workspace request failed with HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable marks the error for the client's backoff loop.
func (e *RetryableError) IsRetryable() bool {
	return true
}

// Throttled reports whether the workspace rate limiter rejected the call.
func (e *RetryableError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}
