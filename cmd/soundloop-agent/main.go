// ABOUTME: Controller agent binary — runs on the home machine beside the mixer API.
// ABOUTME: Usage: soundloop-agent -relay https://relay.example.com [-mode duplex] [-local http://127.0.0.1:5000]

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soundloop/soundloop-relay/internal/agent"
	"github.com/soundloop/soundloop-relay/internal/logging"
)

func main() {
	relayURL := flag.String("relay", os.Getenv("SOUNDLOOP_RELAY_URL"), "Relay base URL (or SOUNDLOOP_RELAY_URL)")
	mode := flag.String("mode", "duplex", "Transport mode: duplex or longpoll")
	localURL := flag.String("local", "http://127.0.0.1:5000", "Local mixer API base URL")
	pingInterval := flag.Duration("ping-interval", 30*time.Second, "Duplex keep-alive ping interval")
	keepAlive := flag.Duration("keep-alive", 5*time.Minute, "Long-poll relay health ping interval")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	if *relayURL == "" {
		fmt.Fprintln(os.Stderr, "Error: -relay is required (or set SOUNDLOOP_RELAY_URL)")
		flag.Usage()
		os.Exit(1)
	}

	logger := logging.Setup(*logLevel, *logFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := agent.New(agent.Config{
		RelayURL:          *relayURL,
		Mode:              *mode,
		PingInterval:      *pingInterval,
		KeepAliveInterval: *keepAlive,
	}, agent.NewHTTPSurface(*localURL), logger.With("component", "agent"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
