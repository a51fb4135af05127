// ABOUTME: Duplex transport: one persistent websocket connection to the controller.
// ABOUTME: Pushes request frames down the socket and resolves response frames from it.

package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// DuplexAdapter delivers requests over a single persistent websocket. Only one
// controller connection is held at a time: if a second controller connects, it
// replaces the first and the prior connection is closed. In-flight requests
// sent on the old connection are left to time out; the caller's Await already
// bounds the wait.
type DuplexAdapter struct {
	resolver Resolver
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewDuplex creates a DuplexAdapter that resolves incoming response frames
// against the given resolver.
func NewDuplex(resolver Resolver, logger *slog.Logger) *DuplexAdapter {
	return &DuplexAdapter{
		resolver: resolver,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeHTTP upgrades the controller's request to a websocket and starts the
// read loop. Mounted by the relay at the tunnel endpoint.
func (a *DuplexAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	a.attach(conn)
	go a.readLoop(conn)
}

// Enqueue serializes the request frame and writes it to the socket.
func (a *DuplexAdapter) Enqueue(req Request) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return ErrNotConnected
	}
	if err := a.conn.WriteJSON(req); err != nil {
		// The connection is dead; drop it so callers fail fast until the
		// controller reconnects.
		a.dropLocked(a.conn)
		return fmt.Errorf("writing request frame: %w", err)
	}
	return nil
}

// Connected reports whether a controller connection is currently open.
func (a *DuplexAdapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// attach makes conn the delivery target, replacing and closing any prior one.
func (a *DuplexAdapter) attach(conn *websocket.Conn) {
	a.mu.Lock()
	prev := a.conn
	a.conn = conn
	a.mu.Unlock()

	if prev != nil {
		a.logger.Warn("controller reconnected, replacing previous connection",
			"remote", conn.RemoteAddr().String(),
		)
		_ = prev.Close()
	} else {
		a.logger.Info("controller connected", "remote", conn.RemoteAddr().String())
	}
}

// detach clears the connection slot, but only if conn is still current: a
// replaced connection must not knock out its successor.
func (a *DuplexAdapter) detach(conn *websocket.Conn) {
	a.mu.Lock()
	a.dropLocked(conn)
	a.mu.Unlock()
	_ = conn.Close()
}

func (a *DuplexAdapter) dropLocked(conn *websocket.Conn) {
	if a.conn == conn {
		a.conn = nil
	}
}

// readLoop decodes response frames from the controller and resolves them.
// Ping frames from the controller's keep-alive are answered by the websocket
// library during the read.
func (a *DuplexAdapter) readLoop(conn *websocket.Conn) {
	defer a.detach(conn)

	for {
		var frame Response
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Warn("controller connection lost", "error", err)
			} else {
				a.logger.Info("controller disconnected")
			}
			return
		}
		if frame.ID == "" {
			a.logger.Debug("ignoring response frame without id")
			continue
		}
		a.resolver.Resolve(frame.ID, frame.Response)
	}
}
