package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HeaderConfig names the response headers the marketplace uses for
// throttling signals. The names vary between marketplaces, so they are
// configuration rather than constants.
type HeaderConfig struct {
	// RetryAfter holds either a number of seconds or an HTTP date.
	RetryAfter string `mapstructure:"retry_after"`
	// Reset holds a Unix epoch second at which the window reopens.
	Reset string `mapstructure:"reset"`
}

// DefaultHeaders matches the most common marketplace convention.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		RetryAfter: "Retry-After",
		Reset:      "X-RateLimit-Reset",
	}
}

// Signal is the classification of one failed attempt.
type Signal struct {
	Retryable  bool
	Throttled  bool
	StatusCode int
	// RetryAfter is the server-suggested wait, zero when none was given.
	RetryAfter time.Duration
}

// classifyStatus inspects a non-2xx status and decides whether the attempt
// may be retried. 429 is throttling proper; 503/504 are transient overload.
// Everything else in 4xx/5xx is terminal for this call.
func classifyStatus(status int, header http.Header, headers HeaderConfig, now time.Time) Signal {
	switch status {
	case http.StatusTooManyRequests:
		return Signal{
			Retryable:  true,
			Throttled:  true,
			StatusCode: status,
			RetryAfter: serverWaitHint(header, headers, now),
		}
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return Signal{
			Retryable:  true,
			StatusCode: status,
			RetryAfter: serverWaitHint(header, headers, now),
		}
	}

	return Signal{StatusCode: status}
}

// classifyNetError decides whether a transport-level error is retryable.
// Timeouts and reset connections are; anything else (bad URL, TLS
// misconfiguration) is terminal.
func classifyNetError(err error) Signal {
	if err == nil {
		return Signal{}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Signal{Retryable: true}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Signal{Retryable: true}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Signal{Retryable: true}
	}

	msg := err.Error()
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "EOF") {
		return Signal{Retryable: true}
	}

	return Signal{}
}

// serverWaitHint parses the configured throttling headers. Retry-After
// wins when both are present; it may be a seconds count or an HTTP date.
// The reset header is a Unix epoch second.
func serverWaitHint(h http.Header, headers HeaderConfig, now time.Time) time.Duration {
	if h == nil {
		return 0
	}

	if name := strings.TrimSpace(headers.RetryAfter); name != "" {
		if raw := strings.TrimSpace(h.Get(name)); raw != "" {
			if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
			if at, err := http.ParseTime(raw); err == nil {
				if wait := at.Sub(now); wait > 0 {
					return wait
				}
			}
		}
	}

	if name := strings.TrimSpace(headers.Reset); name != "" {
		if raw := strings.TrimSpace(h.Get(name)); raw != "" {
			if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
				if wait := time.Unix(epoch, 0).Sub(now); wait > 0 {
					return wait
				}
			}
		}
	}

	return 0
}
