package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sellerdesk/sellerdesk/internal/observability"
)

// statusRecorder captures the status code and body size written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.written += int64(n)
	return n, err
}

// endpointLabel returns the chi route pattern so metric labels stay
// low-cardinality. Requests that never matched a route collapse into a
// small fixed set instead of leaking raw paths into label values.
func endpointLabel(r *http.Request) string {
	if pattern := chi.RouteContext(r.Context()).RoutePattern(); pattern != "" {
		return pattern
	}

	switch path := r.URL.Path; path {
	case "/health", "/health/live", "/health/ready", "/health/startup":
		return "/health/*"
	case "/version", "/metrics", "/":
		return path
	case "/api/v1/marketplace/call", "/api/v1/marketplace/rate-limit", "/api/v1/marketplace/queue":
		return path
	default:
		return "/unknown"
	}
}

// RequestMetrics emits per-request telemetry (count, duration, sizes,
// error counters) plus a structured access log line. It is a no-op when
// telemetry is disabled.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sys := observability.TelemetrySystem
		if sys == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		requestSize := parseContentLength(r)

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		endpoint := endpointLabel(r)
		status := strconv.Itoa(rec.status)

		labels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
			"status":   status,
		}
		sizeLabels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
		}

		_ = sys.Counter("http_requests_total", 1, labels)
		_ = sys.Histogram("http_request_duration_ms", elapsed, labels)
		_ = sys.Gauge("http_request_size_bytes", float64(requestSize), sizeLabels)
		_ = sys.Gauge("http_response_size_bytes", float64(rec.written), sizeLabels)

		if rec.status >= 400 {
			errorType := "client_error"
			if rec.status >= 500 {
				errorType = "server_error"
			}
			_ = sys.Counter("http_errors_total", 1, map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"status":     status,
				"error_type": errorType,
			})
		}

		// Request ID stays in logs, not metrics, to keep cardinality down.
		if observability.ServerLogger != nil {
			observability.ServerLogger.Info("HTTP request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", endpoint),
				zap.Int("status", rec.status),
				zap.Duration("duration", elapsed),
				zap.Int64("request_size", requestSize),
				zap.Int64("response_size", rec.written),
				zap.String("requestID", GetRequestID(r.Context())),
			)
		}
	})
}

func parseContentLength(r *http.Request) int64 {
	header := r.Header.Get("Content-Length")
	if header == "" {
		return 0
	}
	size, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return 0
	}
	return size
}
