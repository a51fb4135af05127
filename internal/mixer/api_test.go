// ABOUTME: Tests for the mixer's local HTTP API handlers.
// ABOUTME: Verifies response bodies and status codes per endpoint.

package mixer

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) (*httptest.Server, *fakeRunner) {
	t.Helper()
	m, runner := newTestMixer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mux := http.NewServeMux()
	NewAPI(m, logger).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, runner
}

func do(t *testing.T, method, url string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestAPIStatus(t *testing.T) {
	srv, runner := newTestAPI(t)
	runner.outputs["get-source-volume"] = "Volume: front-left: 65536 / 100% / 0.00 dB"
	runner.outputs["get-sink-volume"] = "Volume: front-left: 52429 / 80% / -5.81 dB"

	var st Status
	resp := do(t, http.MethodGet, srv.URL+"/api/status", &st)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, Status{Input: 100, Output: 80, Latency: 30, Loopback: false}, st)
}

func TestAPIInput(t *testing.T) {
	srv, _ := newTestAPI(t)

	var result setResult
	resp := do(t, http.MethodPost, srv.URL+"/api/input/75", &result)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, setResult{Success: true, Value: 75}, result)
}

func TestAPILoopback(t *testing.T) {
	srv, _ := newTestAPI(t)

	var result struct {
		Success bool `json:"success"`
		Active  bool `json:"active"`
	}
	resp := do(t, http.MethodPost, srv.URL+"/api/loopback/on", &result)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, result.Success)
	assert.True(t, result.Active)

	resp = do(t, http.MethodPost, srv.URL+"/api/loopback/off", &result)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, result.Success)
	assert.False(t, result.Active)
}

func TestAPIPreset(t *testing.T) {
	srv, _ := newTestAPI(t)

	var result struct {
		Success bool   `json:"success"`
		Preset  string `json:"preset"`
	}
	resp := do(t, http.MethodPost, srv.URL+"/api/preset/movie", &result)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, result.Success)
	assert.Equal(t, "movie", result.Preset)

	var failed map[string]bool
	resp = do(t, http.MethodPost, srv.URL+"/api/preset/disco", &failed)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, failed["success"])
}

func TestAPIBadRequests(t *testing.T) {
	srv, _ := newTestAPI(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/input/loud", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/latency/-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/input/75", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/status", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
