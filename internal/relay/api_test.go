// ABOUTME: End-to-end tests of the relay's caller-facing /api contract.
// ABOUTME: Drives the long-poll transport through its real HTTP endpoints.

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundloop/soundloop-relay/internal/config"
	"github.com/soundloop/soundloop-relay/internal/transport"
)

func testConfig(mode string, requestTimeout time.Duration) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Transport: config.TransportConfig{
			Mode:           mode,
			QueueSize:      100,
			RequestTimeout: requestTimeout,
			PollWindow:     200 * time.Millisecond,
			LivenessWindow: 15 * time.Second,
			SweepInterval:  time.Minute,
			StaleAfter:     30 * time.Second,
		},
	}
}

func newTestRelay(t *testing.T, mode string, requestTimeout time.Duration) (*Server, *httptest.Server) {
	t.Helper()
	return newTestRelayFromConfig(t, testConfig(mode, requestTimeout))
}

func newTestRelayFromConfig(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.correlator.Close() })

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

// fakeController drains /tunnel/poll and answers every request by calling
// respond, mimicking the controller agent's long-poll loop.
func fakeController(t *testing.T, srv *httptest.Server, respond func(transport.Request) json.RawMessage) func() {
	t.Helper()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		client := &http.Client{Timeout: 5 * time.Second}
		for {
			select {
			case <-stop:
				return
			default:
			}

			resp, err := client.Get(srv.URL + "/tunnel/poll")
			if err != nil {
				return
			}
			var body pollResponse
			err = json.NewDecoder(resp.Body).Decode(&body)
			resp.Body.Close()
			if err != nil || body.Request == nil {
				continue
			}

			frame := transport.Response{
				ID:       body.Request.ID,
				Response: respond(*body.Request),
			}
			payload, _ := json.Marshal(frame)
			post, err := client.Post(srv.URL+"/tunnel/respond", "application/json", bytes.NewReader(payload))
			if err == nil {
				post.Body.Close()
			}
		}
	}()

	return func() {
		close(stop)
		wg.Wait()
	}
}

// markConnected performs one empty poll so the relay sees the controller.
func markConnected(t *testing.T, s *Server) {
	t.Helper()
	_, err := s.longpoll.Poll(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func postJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestAPINotConnected(t *testing.T) {
	_, srv := newTestRelay(t, config.ModeLongPoll, time.Second)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/api/status", &body)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "Local server not connected", body["error"])
}

func TestAPIStatusRoundtrip(t *testing.T) {
	s, srv := newTestRelay(t, config.ModeLongPoll, 5*time.Second)

	stop := fakeController(t, srv, func(req transport.Request) json.RawMessage {
		assert.Equal(t, "/api/status", req.Path)
		assert.Equal(t, "GET", req.Method)
		return json.RawMessage(`{"input":100,"output":80,"latency":30,"loopback":true}`)
	})
	defer stop()
	require.Eventually(t, s.adapter.Connected, 2*time.Second, 5*time.Millisecond)

	var body map[string]any
	resp := getJSON(t, srv.URL+"/api/status", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, float64(100), body["input"])
	assert.Equal(t, true, body["loopback"])
}

func TestAPISetterRoundtrip(t *testing.T) {
	s, srv := newTestRelay(t, config.ModeLongPoll, 5*time.Second)

	stop := fakeController(t, srv, func(req transport.Request) json.RawMessage {
		assert.Equal(t, "/api/input/75", req.Path)
		assert.Equal(t, "POST", req.Method)
		return json.RawMessage(`{"success":true,"value":75}`)
	})
	defer stop()
	require.Eventually(t, s.adapter.Connected, 2*time.Second, 5*time.Millisecond)

	var body map[string]any
	resp := postJSON(t, srv.URL+"/api/input/75", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(75), body["value"])
}

func TestAPITimeout(t *testing.T) {
	s, srv := newTestRelay(t, config.ModeLongPoll, 50*time.Millisecond)
	markConnected(t, s)

	// Connected but never answering: the relay gives up at its own deadline.
	var body map[string]string
	resp := postJSON(t, srv.URL+"/api/output/80", &body)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, "Timeout", body["error"])
}

func TestAPIEmptyResponse(t *testing.T) {
	s, srv := newTestRelay(t, config.ModeLongPoll, 5*time.Second)

	stop := fakeController(t, srv, func(transport.Request) json.RawMessage {
		return json.RawMessage(`null`)
	})
	defer stop()
	require.Eventually(t, s.adapter.Connected, 2*time.Second, 5*time.Millisecond)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/api/status", &body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Empty response", body["error"])
}

func TestAPIBadSegments(t *testing.T) {
	s, srv := newTestRelay(t, config.ModeLongPoll, time.Second)
	markConnected(t, s)

	for _, path := range []string{
		"/api/input/abc",
		"/api/input/-5",
		"/api/input/",
		"/api/input/1/2",
		"/api/preset/",
		"/api/loopback/on/off",
	} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "path %s", path)
	}
}

func TestAPIMethodNotAllowed(t *testing.T) {
	_, srv := newTestRelay(t, config.ModeLongPoll, time.Second)

	resp := postJSON(t, srv.URL+"/api/status", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = getJSON(t, srv.URL+"/api/input/75", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = getJSON(t, srv.URL+"/api/preset/movie", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthReflectsControllerPresence(t *testing.T) {
	s, srv := newTestRelay(t, config.ModeLongPoll, time.Second)

	var health struct {
		Status         string `json:"status"`
		LocalConnected bool   `json:"local_connected"`
	}
	resp := getJSON(t, srv.URL+"/health", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.LocalConnected)

	markConnected(t, s)

	resp = getJSON(t, srv.URL+"/health", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, health.LocalConnected)
}

func TestEvictedCallerTimesOut(t *testing.T) {
	cfg := testConfig(config.ModeLongPoll, 700*time.Millisecond)
	cfg.Transport.QueueSize = 1
	s, srv := newTestRelayFromConfig(t, cfg)
	markConnected(t, s)

	evictions := make(chan transport.Request, 1)
	s.longpoll.OnEvict = func(req transport.Request) { evictions <- req }

	type result struct {
		status int
		body   map[string]any
		err    error
	}
	post := func(path string, ch chan<- result) {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		if err != nil {
			ch <- result{err: err}
			return
		}
		defer resp.Body.Close()
		var body map[string]any
		err = json.NewDecoder(resp.Body).Decode(&body)
		ch <- result{status: resp.StatusCode, body: body, err: err}
	}

	evicted := make(chan result, 1)
	go post("/api/input/1", evicted)
	require.Eventually(t, func() bool { return s.longpoll.QueueLen() == 1 }, time.Second, 5*time.Millisecond)

	// The second caller overflows the size-1 queue and displaces the first.
	survivor := make(chan result, 1)
	go post("/api/input/2", survivor)

	select {
	case req := <-evictions:
		require.Equal(t, "/api/input/1", req.Path)
	case <-time.After(time.Second):
		t.Fatal("overflow did not evict the oldest request")
	}

	// The controller arrives late and drains the queue: only the survivor
	// is there, and only the survivor gets an answer.
	var polled pollResponse
	resp := getJSON(t, srv.URL+"/tunnel/poll", &polled)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, polled.Request)
	require.Equal(t, "/api/input/2", polled.Request.Path)

	frame, err := json.Marshal(transport.Response{
		ID:       polled.Request.ID,
		Response: json.RawMessage(`{"success":true,"value":2}`),
	})
	require.NoError(t, err)
	respondResp, err := http.Post(srv.URL+"/tunnel/respond", "application/json", bytes.NewReader(frame))
	require.NoError(t, err)
	respondResp.Body.Close()

	sr := <-survivor
	require.NoError(t, sr.err)
	assert.Equal(t, http.StatusOK, sr.status)
	assert.Equal(t, float64(2), sr.body["value"])

	// The evicted caller observes a plain timeout, never anyone else's
	// response.
	er := <-evicted
	require.NoError(t, er.err)
	assert.Equal(t, http.StatusGatewayTimeout, er.status)
	assert.Equal(t, "Timeout", er.body["error"])
}

func TestUnknownTransportMode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(testConfig("carrier-pigeon", time.Second), logger)
	assert.Error(t, err)
}

func TestConcurrentCallersGetTheirOwnResponses(t *testing.T) {
	_, srv := newTestRelay(t, config.ModeLongPoll, 5*time.Second)

	stop := fakeController(t, srv, func(req transport.Request) json.RawMessage {
		value, _ := intSegment(req.Path, "/api/input/")
		return json.RawMessage(fmt.Sprintf(`{"success":true,"value":%d}`, value))
	})
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var body map[string]any
			resp, err := http.Post(fmt.Sprintf("%s/api/input/%d", srv.URL, i), "application/json", nil)
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()
			if !assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body)) {
				return
			}
			assert.Equal(t, float64(i), body["value"])
		}(i)
	}
	wg.Wait()
}
