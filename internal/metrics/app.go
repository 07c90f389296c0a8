// Package metrics emits application metrics through the telemetry system.
// Metric names follow Prometheus conventions; everything is a no-op until
// observability.InitMetrics has run.
package metrics

import (
	"time"

	"github.com/sellerdesk/sellerdesk/internal/observability"
)

// Application-level metric names
var (
	// Dispatch metrics
	DispatchTotal      = "app_dispatch_total"
	DispatchDuration   = "app_dispatch_duration_ms"
	DispatchRetryTotal = "app_dispatch_retry_total"

	// Rate limiter state
	QueueDepth         = "app_queue_depth"
	BudgetRemainingDay = "app_budget_remaining_day"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordDispatch records a completed marketplace call with its outcome.
func RecordDispatch(method string, outcome string, attempts int, elapsed time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Counter(
		DispatchTotal,
		1,
		map[string]string{
			"method":  method,
			"outcome": outcome,
		},
	)

	_ = observability.TelemetrySystem.Histogram(
		DispatchDuration,
		elapsed,
		map[string]string{
			"method": method,
		},
	)

	if attempts > 1 {
		_ = observability.TelemetrySystem.Counter(
			DispatchRetryTotal,
			float64(attempts-1),
			map[string]string{
				"method": method,
			},
		)
	}
}

// SetQueueDepth publishes the current number of calls parked in the queue.
func SetQueueDepth(depth int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			QueueDepth,
			float64(depth),
			nil,
		)
	}
}

// SetBudgetRemainingDay publishes the remaining daily quota.
func SetBudgetRemainingDay(remaining int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			BudgetRemainingDay,
			float64(remaining),
			nil,
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}
