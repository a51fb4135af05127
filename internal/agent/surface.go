// ABOUTME: Local control surface abstraction and its HTTP client implementation.
// ABOUTME: The agent treats the surface as an opaque synchronous RPC target.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Surface is the synchronous target for relayed requests: given a method and
// path it returns a JSON body or an error. The production implementation is
// an HTTP client against the local mixer API.
type Surface interface {
	Do(ctx context.Context, method, path string) (json.RawMessage, error)
}

// HTTPSurface forwards relayed requests to a local HTTP API.
type HTTPSurface struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSurface creates a surface for the local API at baseURL. Each call is
// bounded by a 5 second timeout, matching the original client.
func NewHTTPSurface(baseURL string) *HTTPSurface {
	return &HTTPSurface{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Do performs the local call and returns its JSON body verbatim. Non-JSON
// bodies are rejected so the relay never mirrors garbage to the caller.
func (s *HTTPSurface) Do(ctx context.Context, method, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building local request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling local API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading local response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("local API returned non-JSON body (status %d)", resp.StatusCode)
	}
	return body, nil
}
