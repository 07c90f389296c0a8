package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sellerdesk/sellerdesk/internal/core"
)

// maxResponseBytes caps how much of a marketplace response body is kept.
const maxResponseBytes = 4 << 20

// Response is the raw outcome of one executed attempt, before the client
// classifies it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Executor performs a single attempt of an operation. Implementations must
// honor ctx cancellation and return transport failures as errors; HTTP
// error statuses come back as a Response for the client to classify.
type Executor interface {
	Do(ctx context.Context, op core.Operation) (*Response, error)
}

// TokenSource supplies the marketplace access token. Token refresh and
// OAuth exchange live behind this interface, outside the client.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed token, typically read from the
// environment at startup.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", errors.New("marketplace access token is not configured")
	}
	return string(t), nil
}

// HTTPExecutor executes operations against the real marketplace API.
type HTTPExecutor struct {
	BaseURL   string
	Client    *http.Client
	Tokens    TokenSource
	UserAgent string
}

func (e *HTTPExecutor) Do(ctx context.Context, op core.Operation) (*Response, error) {
	if e == nil {
		return nil, errors.New("http executor is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := e.buildURL(op)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(op.Body) > 0 {
		body = bytes.NewReader(op.Body)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(strings.TrimSpace(op.Method)), target, body)
	if err != nil {
		return nil, fmt.Errorf("build marketplace request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if len(op.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}

	if e.Tokens != nil {
		token, err := e.Tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpClient := e.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read marketplace response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       payload,
	}, nil
}

func (e *HTTPExecutor) buildURL(op core.Operation) (string, error) {
	base := strings.TrimSpace(e.BaseURL)
	if base == "" {
		return "", errors.New("marketplace base URL is required")
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid marketplace base URL: %w", err)
	}

	ref := &url.URL{Path: strings.TrimSpace(op.Path)}
	resolved := parsed.ResolveReference(ref)

	if len(op.Query) > 0 {
		values := resolved.Query()
		for key, value := range op.Query {
			values.Set(key, value)
		}
		resolved.RawQuery = values.Encode()
	}

	return resolved.String(), nil
}
