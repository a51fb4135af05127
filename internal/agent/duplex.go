// ABOUTME: Duplex agent loop: persistent websocket to the relay with keep-alive pings.
// ABOUTME: Reconnects with backoff; per-request failures go back as error responses.

package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soundloop/soundloop-relay/internal/transport"
)

func (a *Agent) runDuplex(ctx context.Context) error {
	wsURL, err := tunnelURL(a.cfg.RelayURL)
	if err != nil {
		return err
	}

	b := a.newBackoff()
	for {
		a.setState(StateConnecting)

		dialer := websocket.Dialer{HandshakeTimeout: 45 * time.Second}
		conn, _, err := dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			a.setState(StateDisconnected)
			if ctx.Err() != nil {
				return nil
			}
			d := b.Duration()
			a.logger.Warn("connection failed", "error", err, "retry_in", d)
			if sleep(ctx, d) != nil {
				return nil
			}
			continue
		}

		b.Reset()
		a.setState(StateConnected)
		a.logger.Info("connected to relay", "url", wsURL)

		a.serveConn(ctx, conn)
		a.setState(StateDisconnected)

		if ctx.Err() != nil {
			return nil
		}
		d := b.Duration()
		a.logger.Info("connection closed, reconnecting", "retry_in", d)
		if sleep(ctx, d) != nil {
			return nil
		}
	}
}

// serveConn reads request frames until the connection dies. Requests are
// handled synchronously; a failing local call is answered with an error body
// so one bad request never stalls the tunnel.
func (a *Agent) serveConn(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	// Close the connection when ctx ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	go a.pingLoop(conn, done)

	// This loop is the connection's only JSON writer; the ping loop uses
	// WriteControl, which is safe alongside WriteJSON.
	for {
		var req transport.Request
		if err := conn.ReadJSON(&req); err != nil {
			if ctx.Err() == nil {
				a.logger.Warn("read failed", "error", err)
			}
			return
		}

		result := a.handle(ctx, req)

		if err := conn.WriteJSON(transport.Response{ID: req.ID, Response: result}); err != nil {
			a.logger.Warn("write failed", "request_id", req.ID, "error", err)
			return
		}
	}
}

// pingLoop sends keep-alive pings until the connection's serve loop exits.
// WriteControl is safe concurrently with WriteJSON.
func (a *Agent) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(a.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// handle invokes the local control surface and shapes the result for the wire.
func (a *Agent) handle(ctx context.Context, req transport.Request) json.RawMessage {
	a.logger.Debug("handling request", "request_id", req.ID, "method", req.Method, "path", req.Path)

	result, err := a.surface.Do(ctx, req.Method, req.Path)
	if err != nil {
		a.logger.Warn("local call failed", "request_id", req.ID, "path", req.Path, "error", err)
		return errorBody(err)
	}
	return result
}

// errorBody shapes a local failure as {"error": message} so it travels the
// normal response channel rather than a transport failure.
func errorBody(err error) json.RawMessage {
	body, marshalErr := json.Marshal(map[string]string{"error": err.Error()})
	if marshalErr != nil {
		return json.RawMessage(`{"error":"internal error"}`)
	}
	return body
}
