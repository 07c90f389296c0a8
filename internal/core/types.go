package core

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Operation describes a logical marketplace API call: the HTTP method, the
// API path relative to the configured base URL, optional query parameters,
// and an optional JSON body.
type Operation struct {
	Method string            `json:"method"`
	Path   string            `json:"path"`
	Query  map[string]string `json:"query,omitempty"`
	Body   []byte            `json:"body,omitempty"`

	// Idempotent marks operations that are safe to retry after a
	// network-level failure where the request may have reached the
	// remote side. GET/HEAD are treated as idempotent regardless.
	Idempotent bool `json:"idempotent,omitempty"`
}

// RetrySafe reports whether the operation may be re-sent after an
// ambiguous transport failure, where the request may already have reached
// the remote side. GET and HEAD never mutate remote state; writes must be
// explicitly marked Idempotent.
func (o Operation) RetrySafe() bool {
	switch strings.ToUpper(strings.TrimSpace(o.Method)) {
	case http.MethodGet, http.MethodHead:
		return true
	}
	return o.Idempotent
}

// Validate checks the operation shape before it is allowed to consume budget.
func (o Operation) Validate() error {
	switch strings.ToUpper(strings.TrimSpace(o.Method)) {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return &OperationError{Field: "method", Reason: "unsupported HTTP method"}
	}

	path := strings.TrimSpace(o.Path)
	if path == "" {
		return &OperationError{Field: "path", Reason: "path is required"}
	}
	if !strings.HasPrefix(path, "/") {
		return &OperationError{Field: "path", Reason: "path must start with /"}
	}
	if _, err := url.Parse(path); err != nil {
		return &OperationError{Field: "path", Reason: "path is not a valid URL path"}
	}

	return nil
}

// OperationError reports a malformed operation descriptor.
type OperationError struct {
	Field  string
	Reason string
}

func (e *OperationError) Error() string {
	return "invalid operation: " + e.Field + ": " + e.Reason
}

// Result is the outcome of a successfully dispatched operation.
type Result struct {
	StatusCode int            `json:"status_code"`
	Body       []byte         `json:"-"`
	JSON       map[string]any `json:"body,omitempty"`
	Attempts   int            `json:"attempts"`
	Elapsed    time.Duration  `json:"elapsed_ms"`
}

// RateLimitInfo is a point-in-time snapshot of the client's budget.
type RateLimitInfo struct {
	RemainingThisSecond int       `json:"remaining_this_second"`
	RemainingToday      int       `json:"remaining_today"`
	NextResetAt         time.Time `json:"next_reset_at"`
}

// QueueStats is a point-in-time snapshot of the client's wait queue.
type QueueStats struct {
	Depth        int   `json:"depth"`
	OldestWaitMs int64 `json:"oldest_wait_ms"`
}

// DayBudgetState is the persisted portion of the rate budget: the UTC day
// window survives process restarts so a daily quota cannot be re-spent by
// bouncing the service.
type DayBudgetState struct {
	Account  string    `json:"account"`
	Used     int       `json:"used"`
	DayStart time.Time `json:"day_start"`
}
