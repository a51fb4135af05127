// ABOUTME: Long-poll agent loop: poll for work, handle it, submit the response.
// ABOUTME: Consecutive-error backoff and a periodic health ping for sleepy hosts.

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soundloop/soundloop-relay/internal/transport"
)

func (a *Agent) runLongPoll(ctx context.Context) error {
	base := strings.TrimSuffix(a.cfg.RelayURL, "/")

	// The client timeout must outlive the server-side poll window.
	client := &http.Client{Timeout: a.cfg.PollWindow + 10*time.Second}

	go a.keepAliveLoop(ctx, client, base)

	b := a.newBackoff()
	consecutive := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		req, err := a.poll(ctx, client, base)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			consecutive++
			a.setState(StateDisconnected)
			a.logger.Warn("poll failed", "error", err, "consecutive", consecutive)
			if consecutive > a.cfg.ErrorThreshold {
				d := b.Duration()
				a.logger.Info("backing off", "sleep", d)
				if sleep(ctx, d) != nil {
					return nil
				}
			}
			continue
		}

		consecutive = 0
		b.Reset()
		a.setState(StateConnected)

		if req == nil {
			// Empty window; re-poll immediately.
			continue
		}

		result := a.handle(ctx, *req)
		if err := a.respond(ctx, client, base, transport.Response{ID: req.ID, Response: result}); err != nil {
			consecutive++
			a.logger.Warn("submit failed", "request_id", req.ID, "error", err)
		}
	}
}

// poll asks the relay for the next queued request. A nil request with nil
// error means the window elapsed empty.
func (a *Agent) poll(ctx context.Context, client *http.Client, base string) (*transport.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/tunnel/poll", nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll returned status %d", resp.StatusCode)
	}

	var body struct {
		Request *transport.Request `json:"request"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding poll response: %w", err)
	}
	return body.Request, nil
}

// respond submits a correlated response to the relay.
func (a *Agent) respond(ctx context.Context, client *http.Client, base string, frame transport.Response) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encoding response frame: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/tunnel/respond", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("respond returned status %d", resp.StatusCode)
	}
	return nil
}

// keepAliveLoop pings the relay's health endpoint so free-tier hosts that
// suspend idle services keep the relay warm.
func (a *Agent) keepAliveLoop(ctx context.Context, client *http.Client, base string) {
	ticker := time.NewTicker(a.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
			if err != nil {
				continue
			}
			resp, err := client.Do(req)
			if err != nil {
				a.logger.Debug("keep-alive ping failed", "error", err)
				continue
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}
}
