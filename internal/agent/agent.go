// ABOUTME: Controller agent: keeps a transport to the relay alive and dispatches
// ABOUTME: relayed requests to the local control surface, returning correlated results.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"

	"github.com/soundloop/soundloop-relay/internal/config"
)

// State is the agent's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Config holds the agent's runtime settings.
type Config struct {
	// RelayURL is the relay's base URL, e.g. https://relay.example.com.
	RelayURL string

	// Mode selects the transport: config.ModeDuplex or config.ModeLongPoll.
	Mode string

	// PingInterval is the duplex keep-alive ping period. Default 30s.
	PingInterval time.Duration

	// PollWindow bounds how long a single long-poll call may take server-side;
	// the HTTP client timeout is derived from it. Default 25s.
	PollWindow time.Duration

	// KeepAliveInterval is the long-poll health ping period that keeps
	// free-tier relay hosts from idling out. Default 5m.
	KeepAliveInterval time.Duration

	// ErrorThreshold is how many consecutive long-poll errors trigger a
	// backoff sleep. Default 3.
	ErrorThreshold int

	// MaxRetryInterval caps the reconnect backoff. Default 30s.
	MaxRetryInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = config.ModeDuplex
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PollWindow <= 0 {
		c.PollWindow = 25 * time.Second
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 5 * time.Minute
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = 3
	}
	if c.MaxRetryInterval <= 0 {
		c.MaxRetryInterval = 30 * time.Second
	}
}

// Agent runs beside the local control surface and bridges it to the relay.
type Agent struct {
	cfg     Config
	surface Surface
	logger  *slog.Logger
	state   atomic.Int32
}

// New creates an Agent. The surface is the synchronous target for relayed
// requests; failures it returns are reported back through the tunnel, never
// allowed to crash the agent.
func New(cfg Config, surface Surface, logger *slog.Logger) (*Agent, error) {
	cfg.applyDefaults()
	if cfg.RelayURL == "" {
		return nil, fmt.Errorf("relay URL is required")
	}
	if cfg.Mode != config.ModeDuplex && cfg.Mode != config.ModeLongPoll {
		return nil, fmt.Errorf("unknown transport mode %q", cfg.Mode)
	}
	return &Agent{
		cfg:     cfg,
		surface: surface,
		logger:  logger,
	}, nil
}

// State returns the current connection state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

func (a *Agent) setState(s State) {
	prev := State(a.state.Swap(int32(s)))
	if prev != s {
		a.logger.Debug("state change", "from", prev.String(), "to", s.String())
	}
}

// Run drives the agent until ctx is canceled. Transport failures trigger
// reconnect with backoff; they are never returned to the caller.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting", "relay", a.cfg.RelayURL, "mode", a.cfg.Mode)
	defer a.setState(StateDisconnected)

	if a.cfg.Mode == config.ModeLongPoll {
		return a.runLongPoll(ctx)
	}
	return a.runDuplex(ctx)
}

// newBackoff returns the reconnect backoff, reset on every successful connect.
func (a *Agent) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min: time.Second,
		Max: a.cfg.MaxRetryInterval,
	}
}

// sleep waits for d or context cancellation, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// tunnelURL converts the relay base URL into the websocket tunnel endpoint.
func tunnelURL(relayURL string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", fmt.Errorf("parsing relay URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported relay URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/tunnel"
	return u.String(), nil
}
