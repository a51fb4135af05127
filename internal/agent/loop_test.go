// ABOUTME: Tests of the agent transport loops against fake relay servers.
// ABOUTME: Covers poll/respond cycling, duplex frame handling, and reconnect.

package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundloop/soundloop-relay/internal/config"
	"github.com/soundloop/soundloop-relay/internal/transport"
)

// fakeRelay serves the long-poll tunnel endpoints: it hands out queued
// requests and records submitted responses.
type fakeRelay struct {
	mu        sync.Mutex
	pending   []transport.Request
	responses map[string]json.RawMessage
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{responses: make(map[string]json.RawMessage)}
}

func (f *fakeRelay) push(req transport.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, req)
}

func (f *fakeRelay) response(id string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.responses[id]
	return result, ok
}

func (f *fakeRelay) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tunnel/poll", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		var req *transport.Request
		if len(f.pending) > 0 {
			req = &f.pending[0]
			f.pending = f.pending[1:]
		}
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]*transport.Request{"request": req})
	})
	mux.HandleFunc("/tunnel/respond", func(w http.ResponseWriter, r *http.Request) {
		var frame transport.Response
		if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.responses[frame.ID] = frame.Response
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
	return mux
}

func TestLongPollLoopHandlesRequest(t *testing.T) {
	relay := newFakeRelay()
	srv := httptest.NewServer(relay.handler())
	defer srv.Close()

	relay.push(transport.Request{ID: "r1", Path: "/api/input/75", Method: "POST"})

	surface := &stubSurface{result: json.RawMessage(`{"success":true,"value":75}`)}
	a, err := New(Config{
		RelayURL:   srv.URL,
		Mode:       config.ModeLongPoll,
		PollWindow: 100 * time.Millisecond,
	}, surface, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		_, ok := relay.response("r1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	result, _ := relay.response("r1")
	assert.JSONEq(t, `{"success":true,"value":75}`, string(result))
	assert.Equal(t, "/api/input/75", surface.lastPath)
	assert.Equal(t, StateConnected, a.State())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop on context cancel")
	}
	assert.Equal(t, StateDisconnected, a.State())
}

func TestLongPollLoopSurvivesRelayOutage(t *testing.T) {
	// No relay at all: the loop must keep retrying, not return.
	a, err := New(Config{
		RelayURL:         "http://127.0.0.1:1",
		Mode:             config.ModeLongPoll,
		PollWindow:       50 * time.Millisecond,
		MaxRetryInterval: 100 * time.Millisecond,
	}, &stubSurface{}, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop on context deadline")
	}
	assert.Equal(t, StateDisconnected, a.State())
}

func TestDuplexLoopHandlesFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan transport.Response, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tunnel" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(transport.Request{ID: "r1", Path: "/api/status", Method: "GET"}); err != nil {
			return
		}
		var frame transport.Response
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		received <- frame

		// Hold the connection open until the agent is canceled.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	surface := &stubSurface{result: json.RawMessage(`{"input":100}`)}
	a, err := New(Config{
		RelayURL: srv.URL,
		Mode:     config.ModeDuplex,
	}, surface, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx)
	}()

	select {
	case frame := <-received:
		assert.Equal(t, "r1", frame.ID)
		assert.JSONEq(t, `{"input":100}`, string(frame.Response))
	case <-time.After(2 * time.Second):
		t.Fatal("relay never received the response frame")
	}
	assert.Equal(t, StateConnected, a.State())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop on context cancel")
	}
}

func TestDuplexLoopReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	connects := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		connects++
		n := connects
		mu.Unlock()

		if n == 1 {
			// Drop the first connection immediately to force a reconnect.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	a, err := New(Config{
		RelayURL:         srv.URL,
		Mode:             config.ModeDuplex,
		MaxRetryInterval: 100 * time.Millisecond,
	}, &stubSurface{}, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connects >= 2
	}, 5*time.Second, 20*time.Millisecond)
}
