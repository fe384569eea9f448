package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport is the shared HTTP client used to reach every upstream
// instance, connections reused across instances via distinct host
// keys rather than opening a fresh client per instance. Grounded on
// pkg/providers/http_provider.go's connection-pooled client, stripped
// of that type's own circuit-breaker health logic since health is
// owned entirely by HealthTracker here.
type Transport struct {
	client *http.Client
}

// NewTransport builds a transport with sane pooling defaults.
func NewTransport() *Transport {
	return &Transport{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        200,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

// UpstreamResponse is the raw result of one upstream call.
type UpstreamResponse struct {
	StatusCode int
	Body       []byte
	RetryAfter time.Duration
}

// DoJSON sends a JSON request and returns the raw response, classified
// into the core error taxonomy when the status indicates failure. A
// nil error with a non-2xx-but-classified response never
// happens: a status that ClassifyStatus maps to an error yields
// (nil, err) with err one of the Upstream*Error types; any other
// status, 2xx or not, yields (resp, nil).
func (t *Transport) DoJSON(ctx context.Context, instanceName, method, url string, body any, headers map[string]string, timeout time.Duration) (*UpstreamResponse, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &ConversionError{Stage: "request-encode", Cause: err}
		}
		reader = bytes.NewReader(encoded)
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
	if err != nil {
		return nil, &ConversionError{Stage: "request-build", Cause: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, &UpstreamTimeoutError{Instance: instanceName, Timeout: timeout}
		}
		return nil, &UpstreamConnectionError{Instance: instanceName, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamConnectionError{Instance: instanceName, Cause: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &UpstreamResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
	}

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
	if classified := ClassifyStatus(instanceName, resp.StatusCode, respBody, retryAfter); classified != nil {
		return nil, classified
	}
	return &UpstreamResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// OpenStream issues a request and returns the live response body for
// the caller to read as an SSE stream; the caller owns closing it.
func (t *Transport) OpenStream(ctx context.Context, instanceName, method, url string, body any, headers map[string]string) (io.ReadCloser, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, &ConversionError{Stage: "request-encode", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, &ConversionError{Stage: "request-build", Cause: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &UpstreamConnectionError{Instance: instanceName, Cause: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}

	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
	if classified := ClassifyStatus(instanceName, resp.StatusCode, respBody, retryAfter); classified != nil {
		return nil, classified
	}
	return nil, &UpstreamServerError{Instance: instanceName, StatusCode: resp.StatusCode, Body: respBody}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
