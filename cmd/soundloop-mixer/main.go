// ABOUTME: Local mixer API binary — serves the control surface on the private network.
// ABOUTME: Usage: soundloop-mixer [-addr 127.0.0.1:5000] [-config ~/.config/soundloop/mixer.yaml]

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/soundloop/soundloop-relay/internal/config"
	"github.com/soundloop/soundloop-relay/internal/logging"
	"github.com/soundloop/soundloop-relay/internal/mixer"
)

func defaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "mixer.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "soundloop", "mixer.yaml")
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "Mixer config file path")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	if err := run(*configPath, *addr, *logLevel, *logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr, logLevel, logFormat string) error {
	cfg, err := config.LoadMixer(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr != "" {
		cfg.Server.HTTPAddr = addr
	}

	logger := logging.Setup(logLevel, logFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := mixer.New(cfg, mixer.ExecRunner{}, logger.With("component", "mixer"))
	m.DetectLoopback(ctx)

	mux := http.NewServeMux()
	mixer.NewAPI(m, logger.With("component", "api")).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mixer API listening", "addr", cfg.Server.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
