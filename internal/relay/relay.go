// ABOUTME: Relay server orchestrator: wires correlator, transport adapter, and HTTP boundary.
// ABOUTME: Manages listener setup, graceful shutdown, and the health endpoint.

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/soundloop/soundloop-relay/internal/config"
	"github.com/soundloop/soundloop-relay/internal/correlator"
	"github.com/soundloop/soundloop-relay/internal/transport"
)

// Server is the publicly reachable relay. It accepts caller requests on its
// HTTP boundary, forwards them to the controller through the configured
// transport adapter, and mirrors the controller's responses back.
type Server struct {
	config     *config.Config
	correlator *correlator.Correlator
	adapter    transport.Adapter
	duplex     *transport.DuplexAdapter
	longpoll   *transport.LongPollAdapter
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics
}

// New creates a relay Server from configuration. The transport mode selects
// which controller-facing endpoints are mounted; the caller-facing /api
// contract is identical in both modes.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	corr := correlator.New(logger.With("component", "correlator"), correlator.Options{
		SweepInterval: cfg.Transport.SweepInterval,
		StaleAfter:    cfg.Transport.StaleAfter,
	})

	s := &Server{
		config:     cfg,
		correlator: corr,
		logger:     logger.With("component", "relay"),
	}

	mux := http.NewServeMux()

	switch cfg.Transport.Mode {
	case config.ModeDuplex:
		s.duplex = transport.NewDuplex(corr, logger.With("component", "duplex"))
		s.adapter = s.duplex
		mux.Handle("/tunnel", s.duplex)

	case config.ModeLongPoll:
		liveness := transport.NewLiveness(cfg.Transport.LivenessWindow, nil)
		s.longpoll = transport.NewLongPoll(corr, liveness, cfg.Transport.QueueSize, nil, logger.With("component", "longpoll"))
		s.adapter = s.longpoll
		mux.HandleFunc("/tunnel/poll", s.handlePoll)
		mux.HandleFunc("/tunnel/respond", s.handleRespond)

	default:
		corr.Close()
		return nil, fmt.Errorf("unknown transport mode %q", cfg.Transport.Mode)
	}

	mux.HandleFunc("/health", s.handleHealth)
	s.registerAPIRoutes(mux)

	if cfg.Metrics.Enabled {
		m, handler := newMetrics(s.adapter, s.longpoll)
		s.metrics = m
		mux.Handle(cfg.Metrics.Path, handler)
		if s.longpoll != nil {
			s.longpoll.OnEvict = func(transport.Request) { m.evict() }
		}
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Run starts the relay and blocks until the context is canceled or the server
// fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening",
			"addr", ln.Addr().String(),
			"transport", s.config.Transport.Mode,
		)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the run context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the HTTP server and releases the correlator's sweep goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down relay")
	err := s.httpServer.Shutdown(ctx)
	s.correlator.Close()
	if err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// Handler exposes the relay's HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// healthResponse is the JSON body for GET /health.
type healthResponse struct {
	Status         string `json:"status"`
	LocalConnected bool   `json:"local_connected"`
}

// handleHealth reports relay liveness and controller presence. Also the target
// of the controller agent's periodic keep-alive ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		LocalConnected: s.adapter.Connected(),
	})
}
