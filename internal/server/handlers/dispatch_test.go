package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sellerdesk/sellerdesk/internal/core"
	"github.com/sellerdesk/sellerdesk/internal/core/client"
)

type stubDispatcher struct {
	result *core.Result
	err    error
	lastOp core.Operation
	queue  core.QueueStats
	info   core.RateLimitInfo
}

func (s *stubDispatcher) Dispatch(ctx context.Context, op core.Operation) (*core.Result, error) {
	s.lastOp = op
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubDispatcher) QueueStats() core.QueueStats {
	return s.queue
}

func (s *stubDispatcher) RateLimitInfo() core.RateLimitInfo {
	return s.info
}

func withDispatcher(t *testing.T, d Dispatcher) {
	t.Helper()
	SetDispatcher(d)
	t.Cleanup(func() { SetDispatcher(nil) })
}

func postCall(t *testing.T, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/marketplace/call", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	DispatchHandler(rec, req)
	return rec
}

func TestDispatchHandlerReturnsResultWithMeta(t *testing.T) {
	stub := &stubDispatcher{
		result: &core.Result{
			StatusCode: 200,
			Body:       []byte(`{"order":"123"}`),
			Attempts:   2,
			Elapsed:    1500 * time.Millisecond,
		},
		queue: core.QueueStats{Depth: 1, OldestWaitMs: 40},
		info:  core.RateLimitInfo{RemainingThisSecond: 4, RemainingToday: 4990},
	}
	withDispatcher(t, stub)

	rec := postCall(t, `{"method":"GET","path":"/orders/123"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp DispatchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected upstream status 200, got %d", resp.StatusCode)
	}
	if resp.Meta.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", resp.Meta.Attempts)
	}
	if resp.Meta.ElapsedMs != 1500 {
		t.Fatalf("expected 1500ms elapsed, got %d", resp.Meta.ElapsedMs)
	}
	if resp.Meta.Queue.Depth != 1 {
		t.Fatalf("expected queue depth 1, got %d", resp.Meta.Queue.Depth)
	}
	if resp.Meta.RateLimit.RemainingToday != 4990 {
		t.Fatalf("expected 4990 remaining today, got %d", resp.Meta.RateLimit.RemainingToday)
	}
	if string(resp.Data) != `{"order":"123"}` {
		t.Fatalf("unexpected data payload: %s", resp.Data)
	}

	if stub.lastOp.Method != "GET" || stub.lastOp.Path != "/orders/123" {
		t.Fatalf("operation not forwarded: %+v", stub.lastOp)
	}
}

func TestDispatchHandlerRejectsMalformedJSON(t *testing.T) {
	withDispatcher(t, &stubDispatcher{})

	rec := postCall(t, `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error.Code != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT, got %s", resp.Error.Code)
	}
}

func TestDispatchHandlerMapsValidationError(t *testing.T) {
	withDispatcher(t, &stubDispatcher{
		err: &core.OperationError{Field: "method", Reason: "unsupported HTTP method"},
	})

	rec := postCall(t, `{"method":"BREW","path":"/coffee"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	var resp struct {
		Error struct {
			Code    string                 `json:"code"`
			Details map[string]interface{} `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED, got %s", resp.Error.Code)
	}
	if resp.Error.Details["field"] != "method" {
		t.Fatalf("expected field detail, got %v", resp.Error.Details)
	}
}

func TestDispatchHandlerMapsRetryExhausted(t *testing.T) {
	withDispatcher(t, &stubDispatcher{
		err: &client.RetryExhaustedError{Attempts: 5},
	})

	rec := postCall(t, `{"method":"GET","path":"/orders"}`)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}
}

func TestDispatchHandlerMapsThrottledWithRetryAfter(t *testing.T) {
	withDispatcher(t, &stubDispatcher{
		err: &client.ThrottledError{StatusCode: 429, RetryAfter: 2 * time.Second},
	})

	rec := postCall(t, `{"method":"GET","path":"/orders"}`)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on throttled response")
	}
}

func TestDispatchHandlerMapsUpstreamRejection(t *testing.T) {
	withDispatcher(t, &stubDispatcher{
		err: &client.ValidationError{StatusCode: 404, Message: "unknown SKU"},
	})

	rec := postCall(t, `{"method":"GET","path":"/products/missing"}`)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}

	var resp struct {
		Error struct {
			Code    string                 `json:"code"`
			Message string                 `json:"message"`
			Details map[string]interface{} `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error.Code != "UPSTREAM_REJECTED" {
		t.Fatalf("expected UPSTREAM_REJECTED, got %s", resp.Error.Code)
	}
	if resp.Error.Message != "unknown SKU" {
		t.Fatalf("expected upstream message, got %s", resp.Error.Message)
	}
}

func TestDispatchHandlerWithoutClient(t *testing.T) {
	SetDispatcher(nil)

	rec := postCall(t, `{"method":"GET","path":"/orders"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}
