package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyStatus429(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	header := http.Header{}
	header.Set("Retry-After", "2")

	sig := classifyStatus(http.StatusTooManyRequests, header, DefaultHeaders(), now)
	require.True(t, sig.Retryable)
	require.True(t, sig.Throttled)
	require.Equal(t, 2*time.Second, sig.RetryAfter)
}

func TestClassifyStatusRetryAfterHTTPDate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	header := http.Header{}
	header.Set("Retry-After", now.Add(30*time.Second).Format(http.TimeFormat))

	sig := classifyStatus(http.StatusTooManyRequests, header, DefaultHeaders(), now)
	require.True(t, sig.Retryable)
	require.Equal(t, 30*time.Second, sig.RetryAfter)
}

func TestClassifyStatusEpochReset(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	header := http.Header{}
	header.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(10*time.Second).Unix(), 10))

	sig := classifyStatus(http.StatusTooManyRequests, header, DefaultHeaders(), now)
	require.True(t, sig.Throttled)
	require.Equal(t, 10*time.Second, sig.RetryAfter)
}

func TestClassifyStatusCustomHeaderNames(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	headers := HeaderConfig{RetryAfter: "X-Throttle-Wait", Reset: "X-Window-Reset"}

	header := http.Header{}
	header.Set("X-Throttle-Wait", "7")
	header.Set("Retry-After", "99") // ignored under custom naming

	sig := classifyStatus(http.StatusTooManyRequests, header, headers, now)
	require.Equal(t, 7*time.Second, sig.RetryAfter)
}

func TestClassifyStatusTransientOverload(t *testing.T) {
	now := time.Now().UTC()

	for _, status := range []int{http.StatusServiceUnavailable, http.StatusGatewayTimeout} {
		sig := classifyStatus(status, http.Header{}, DefaultHeaders(), now)
		require.True(t, sig.Retryable, "status %d", status)
		require.False(t, sig.Throttled, "status %d", status)
	}
}

func TestClassifyStatusTerminal(t *testing.T) {
	now := time.Now().UTC()

	for _, status := range []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusUnprocessableEntity,
		http.StatusInternalServerError,
	} {
		sig := classifyStatus(status, http.Header{}, DefaultHeaders(), now)
		require.False(t, sig.Retryable, "status %d", status)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyNetError(t *testing.T) {
	require.True(t, classifyNetError(timeoutErr{}).Retryable)
	require.True(t, classifyNetError(context.DeadlineExceeded).Retryable)
	require.True(t, classifyNetError(&net.OpError{Op: "read", Err: errors.New("connection reset by peer")}).Retryable)
	require.False(t, classifyNetError(errors.New("unsupported protocol scheme")).Retryable)
	require.False(t, classifyNetError(nil).Retryable)
}
