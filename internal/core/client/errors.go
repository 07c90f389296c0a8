package client

import (
	"fmt"
	"time"
)

// ValidationError reports a remote rejection unrelated to load (4xx other
// than 429). These are never retried: the caller's input is wrong and
// resubmitting it would burn budget for the same answer.
type ValidationError struct {
	StatusCode int
	Body       []byte
	Message    string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("marketplace rejected request (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("marketplace rejected request (%d)", e.StatusCode)
}

// ThrottledError reports a retryable failure: the marketplace signalled
// rate limiting or transient overload, or the request failed at the
// network level. RetryAfter carries the server's wait hint when one was
// present.
type ThrottledError struct {
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *ThrottledError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("marketplace call failed transiently: %v", e.Err)
	case e.RetryAfter > 0:
		return fmt.Sprintf("marketplace throttled request (%d), retry after %s", e.StatusCode, e.RetryAfter)
	default:
		return fmt.Sprintf("marketplace throttled request (%d)", e.StatusCode)
	}
}

func (e *ThrottledError) Unwrap() error { return e.Err }

// RetryExhaustedError is surfaced after MaxRetries attempts all failed
// with retryable errors. It is distinguishable from ValidationError so
// callers can offer "try again later" instead of "fix your request".
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }
