package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sellerdesk/sellerdesk/internal/core"
)

func TestHTTPExecutorBuildsRequest(t *testing.T) {
	var seen *http.Request
	var seenBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		_ = json.NewDecoder(r.Body).Decode(&seenBody)
		w.Header().Set("X-RateLimit-Reset", "12345")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"L-1"}`))
	}))
	defer srv.Close()

	exec := &HTTPExecutor{
		BaseURL:   srv.URL,
		Tokens:    StaticToken("tok-123"),
		UserAgent: "sellerdesk-test",
	}

	resp, err := exec.Do(context.Background(), core.Operation{
		Method: "post",
		Path:   "/listings",
		Query:  map[string]string{"dry_run": "1"},
		Body:   []byte(`{"sku":"A-1"}`),
	})
	require.NoError(t, err)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "12345", resp.Header.Get("X-RateLimit-Reset"))
	require.JSONEq(t, `{"id":"L-1"}`, string(resp.Body))

	require.Equal(t, http.MethodPost, seen.Method)
	require.Equal(t, "/listings", seen.URL.Path)
	require.Equal(t, "1", seen.URL.Query().Get("dry_run"))
	require.Equal(t, "Bearer tok-123", seen.Header.Get("Authorization"))
	require.Equal(t, "application/json", seen.Header.Get("Content-Type"))
	require.Equal(t, "sellerdesk-test", seen.Header.Get("User-Agent"))
	require.Equal(t, "A-1", seenBody["sku"])
}

func TestHTTPExecutorErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	exec := &HTTPExecutor{BaseURL: srv.URL}
	resp, err := exec.Do(context.Background(), core.Operation{Method: "GET", Path: "/orders"})
	require.NoError(t, err, "HTTP error statuses are returned for classification, not as errors")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "3", resp.Header.Get("Retry-After"))
}

func TestHTTPExecutorMissingToken(t *testing.T) {
	exec := &HTTPExecutor{BaseURL: "http://marketplace.invalid", Tokens: StaticToken("")}
	_, err := exec.Do(context.Background(), core.Operation{Method: "GET", Path: "/orders"})
	require.Error(t, err)
}

func TestHTTPExecutorRequiresBaseURL(t *testing.T) {
	exec := &HTTPExecutor{}
	_, err := exec.Do(context.Background(), core.Operation{Method: "GET", Path: "/orders"})
	require.Error(t, err)
}
