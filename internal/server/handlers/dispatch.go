package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sellerdesk/sellerdesk/internal/core"
	apperrors "github.com/sellerdesk/sellerdesk/internal/errors"
	"github.com/sellerdesk/sellerdesk/internal/metrics"
	"github.com/sellerdesk/sellerdesk/internal/server/middleware"
)

// maxDispatchRequestBytes caps the inbound call descriptor size.
const maxDispatchRequestBytes = 4 << 20

// Dispatcher is the slice of the marketplace client the handlers need.
type Dispatcher interface {
	Dispatch(ctx context.Context, op core.Operation) (*core.Result, error)
	QueueStats() core.QueueStats
	RateLimitInfo() core.RateLimitInfo
}

var dispatcher Dispatcher

// SetDispatcher injects the marketplace client used by the API handlers.
func SetDispatcher(d Dispatcher) {
	dispatcher = d
}

// DispatchRequest is the inbound call descriptor.
type DispatchRequest struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Query      map[string]string `json:"query,omitempty"`
	Body       json.RawMessage   `json:"body,omitempty"`
	Idempotent bool              `json:"idempotent,omitempty"`
}

// DispatchMeta describes how the call was handled.
type DispatchMeta struct {
	RequestID string             `json:"request_id,omitempty"`
	Attempts  int                `json:"attempts"`
	ElapsedMs int64              `json:"elapsed_ms"`
	Queue     core.QueueStats    `json:"queue"`
	RateLimit core.RateLimitInfo `json:"rate_limit"`
}

// DispatchResponse wraps the upstream result with dispatch metadata.
type DispatchResponse struct {
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data,omitempty"`
	Meta       DispatchMeta    `json:"meta"`
}

// DispatchHandler accepts a call descriptor, runs it through the
// rate-limited client, and reports the upstream result plus queue and
// budget state at completion time.
func DispatchHandler(w http.ResponseWriter, r *http.Request) {
	if dispatcher == nil {
		respondWithError(w, r, apperrors.NewInternalError("marketplace client not initialized"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxDispatchRequestBytes))
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "unable to read request body"))
		return
	}

	var req DispatchRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body is not valid JSON"))
		return
	}

	op := core.Operation{
		Method:     req.Method,
		Path:       req.Path,
		Query:      req.Query,
		Body:       req.Body,
		Idempotent: req.Idempotent,
	}

	result, err := dispatcher.Dispatch(r.Context(), op)
	if err != nil {
		metrics.RecordDispatch(op.Method, "error", 0, 0)
		respondWithError(w, r, apperrors.FromDispatchError(r.Context(), err))
		return
	}

	metrics.RecordDispatch(op.Method, "success", result.Attempts, result.Elapsed)
	queue := dispatcher.QueueStats()
	info := dispatcher.RateLimitInfo()
	metrics.SetQueueDepth(queue.Depth)
	metrics.SetBudgetRemainingDay(info.RemainingToday)

	response := DispatchResponse{
		StatusCode: result.StatusCode,
		Meta: DispatchMeta{
			RequestID: middleware.GetRequestID(r.Context()),
			Attempts:  result.Attempts,
			ElapsedMs: result.Elapsed.Milliseconds(),
			Queue:     queue,
			RateLimit: info,
		},
	}
	if len(result.Body) > 0 && json.Valid(result.Body) {
		response.Data = json.RawMessage(result.Body)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
