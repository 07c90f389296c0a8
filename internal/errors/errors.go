// Package errors normalizes application errors into gofulmen error
// envelopes and writes the standard JSON error response. It also maps the
// marketplace client's error taxonomy onto API-facing error codes.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellerdesk/sellerdesk/internal/core"
	"github.com/sellerdesk/sellerdesk/internal/core/client"
	"github.com/sellerdesk/sellerdesk/internal/metrics"
	"github.com/sellerdesk/sellerdesk/internal/observability"
	"github.com/sellerdesk/sellerdesk/internal/server/middleware"
)

// Error creation helpers for common error types

// User Errors (400-level)
func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("INVALID_INPUT", message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("NOT_FOUND", message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("METHOD_NOT_ALLOWED", message)
}

func NewValidationError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("VALIDATION_FAILED", message)
}

// Server Errors (500-level)
func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("INTERNAL_ERROR", message)
}

func NewDatabaseError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("DATABASE_ERROR", message)
}

func NewTimeoutError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("TIMEOUT", message)
}

// Dispatch-specific errors
func NewRateLimitedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("RATE_LIMITED", message)
}

func NewRetryExhaustedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("RETRY_EXHAUSTED", message)
}

func NewUpstreamRejectedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("UPSTREAM_REJECTED", message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("CONFIG_INVALID", message)
}

// Wrap functions for existing errors. They accept a context to extract
// correlation/trace IDs from the request context.

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrapWithCode(ctx, err, "INVALID_INPUT", message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrapWithCode(ctx, err, "INTERNAL_ERROR", message)
}

func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrapWithCode(ctx, err, "DATABASE_ERROR", message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrapWithCode(ctx, err, "CONFIG_INVALID", message)
}

func wrapWithCode(ctx context.Context, err error, code, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	envelope = envelope.WithTraceID(extractTraceID(ctx))
	envelope = withWrappedError(envelope, err)
	return envelope
}

// FromDispatchError translates a marketplace client error into an envelope
// carrying the API-facing code and the upstream detail the caller needs.
func FromDispatchError(ctx context.Context, err error) *errors.ErrorEnvelope {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, client.ErrClientClosed):
		return wrapWithCode(ctx, err, "SERVICE_UNAVAILABLE", "marketplace client is shut down")
	case stderrors.Is(err, context.Canceled):
		return wrapWithCode(ctx, err, "REQUEST_CANCELLED", "request cancelled before dispatch completed")
	case stderrors.Is(err, context.DeadlineExceeded):
		return wrapWithCode(ctx, err, "TIMEOUT", "request deadline exceeded while waiting for dispatch")
	}

	var opErr *core.OperationError
	if stderrors.As(err, &opErr) {
		envelope := wrapWithCode(ctx, err, "VALIDATION_FAILED", opErr.Error())
		envelope, _ = envelope.WithContext(map[string]interface{}{
			"field": opErr.Field,
		})
		return envelope
	}

	var validation *client.ValidationError
	if stderrors.As(err, &validation) {
		envelope := wrapWithCode(ctx, err, "UPSTREAM_REJECTED", validation.Message)
		envelope, _ = envelope.WithContext(map[string]interface{}{
			"upstream_status": validation.StatusCode,
		})
		return envelope
	}

	var exhausted *client.RetryExhaustedError
	if stderrors.As(err, &exhausted) {
		envelope := wrapWithCode(ctx, err, "RETRY_EXHAUSTED", "marketplace call failed after retries")
		envelope, _ = envelope.WithContext(map[string]interface{}{
			"attempts": exhausted.Attempts,
		})
		return envelope
	}

	var throttled *client.ThrottledError
	if stderrors.As(err, &throttled) {
		envelope := wrapWithCode(ctx, err, "RATE_LIMITED", "marketplace throttled the call")
		envelope, _ = envelope.WithContext(map[string]interface{}{
			"upstream_status": throttled.StatusCode,
			"retry_after":     throttled.RetryAfter.String(),
		})
		return envelope
	}

	return wrapWithCode(ctx, err, "INTERNAL_ERROR", "dispatch failed")
}

// Helper functions for ID generation

// extractCorrelationID gets correlation ID from context, falls back to generating new UUID
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

// extractTraceID gets trace ID from context; for now the correlation ID
// doubles as the trace ID.
func extractTraceID(ctx context.Context) string {
	return extractCorrelationID(ctx)
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope("INTERNAL_ERROR", "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}

	env := errors.NewErrorEnvelope("INTERNAL_ERROR", "unexpected error")
	env, _ = env.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	if envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}

	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}

	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromEnvelope resolves the HTTP status code corresponding to an error envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case "INVALID_INPUT", "VALIDATION_FAILED":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "METHOD_NOT_ALLOWED":
		return http.StatusMethodNotAllowed
	case "UPSTREAM_REJECTED":
		return http.StatusUnprocessableEntity
	case "RATE_LIMITED":
		return http.StatusTooManyRequests
	case "RETRY_EXHAUSTED", "EXTERNAL_SERVICE_ERROR":
		return http.StatusBadGateway
	case "REQUEST_CANCELLED":
		return http.StatusRequestTimeout
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	case "SERVICE_UNAVAILABLE":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// ResponseDetails constructs an API-safe details map by merging envelope details and context.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil {
		return nil
	}

	details := make(map[string]interface{})

	for key, value := range envelope.Details {
		details[key] = value
	}

	for key, value := range envelope.Context {
		if _, exists := details[key]; !exists {
			details[key] = value
		}
	}

	if len(details) == 0 {
		return nil
	}

	return details
}

// HTTPErrorDetail captures the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError normalizes the supplied error and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope finalizes the provided envelope, logging and emitting metrics.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	if r != nil {
		envelope = EnsureCorrelationID(envelope, r.Context())
	} else {
		envelope = EnsureCorrelationID(envelope, nil)
	}

	statusCode := HTTPStatusFromEnvelope(envelope)

	response := HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   ResponseDetails(envelope),
			RequestID: envelope.CorrelationID,
		},
	}

	logHTTPError(envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)

	// Throttled calls carry the server wait hint through to the caller.
	if statusCode == http.StatusTooManyRequests {
		if wait, ok := envelope.Context["retry_after"].(string); ok && wait != "" {
			w.Header().Set("Retry-After", wait)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	if observability.ServerLogger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}

	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}

	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		observability.ServerLogger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		observability.ServerLogger.Warn(envelope.Message, fields...)
	default:
		observability.ServerLogger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if envelope == nil {
		return
	}

	metrics.RecordError(envelope.Code, statusCode)
	if r != nil {
		metrics.RecordErrorByEndpoint(r.URL.Path, envelope.Code)
	}
}

