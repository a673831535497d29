package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mrorigo/stream-healer/internal/config"
	"github.com/mrorigo/stream-healer/internal/log"
)

// blockedHeaders are stripped from the inbound request before it is
// forwarded upstream: hop-by-hop or proxy-identifying headers that
// must not leak from the caller to the upstream API, and vice versa.
var blockedHeaders = map[string]bool{
	"Content-Length": true,
	"Content-Type":   true,
	"Connection":     true,
	"Host":           true,
	"Authorization":  true,
}

// UpstreamError wraps a non-2xx upstream response so callers can relay
// the original status code and body to their own caller.
type UpstreamError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
}

// Upstream forwards chat-completion requests to an OpenAI-compatible
// API, the way internal/pkg/httpclient.HttpClient does for the
// teacher's multi-provider LLM gateway, trimmed to the one route this
// service proxies.
type Upstream struct {
	client *http.Client
	config config.UpstreamConfig
}

// NewUpstream builds an Upstream from cfg.
func NewUpstream(cfg config.UpstreamConfig) *Upstream {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Upstream{
		client: &http.Client{Timeout: timeout},
		config: cfg,
	}
}

func (u *Upstream) buildRequest(ctx context.Context, inbound *http.Request, body []byte) (*http.Request, error) {
	url := u.config.BaseURL + "/v1/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}

	for k, v := range inbound.Header {
		if blockedHeaders[k] {
			continue
		}

		req.Header[k] = v
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "stream-healer/1.0")

	if u.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.config.APIKey)
	}

	return req, nil
}

// Do sends a non-streaming chat-completion request and returns the
// full upstream response body.
func (u *Upstream) Do(ctx context.Context, inbound *http.Request, body []byte) ([]byte, int, http.Header, error) {
	req, err := u.buildRequest(ctx, inbound, body)
	if err != nil {
		return nil, 0, nil, err
	}

	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("upstream request failed: %w", err)
	}

	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warn(ctx, "failed to close upstream response body", log.Cause(cerr))
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, 0, nil, &UpstreamError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       respBody,
		}
	}

	return respBody, resp.StatusCode, resp.Header, nil
}

// DoStream sends a streaming chat-completion request and returns the
// decoded SSE event stream. The caller owns Close.
func (u *Upstream) DoStream(ctx context.Context, inbound *http.Request, body []byte) (Stream[*StreamEvent], error) {
	req, err := u.buildRequest(ctx, inbound, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream stream request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer func() {
			_ = resp.Body.Close()
		}()

		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read upstream error body: %w", readErr)
		}

		return nil, &UpstreamError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       respBody,
		}
	}

	return newSSEDecoder(ctx, resp.Body), nil
}
