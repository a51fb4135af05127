// Package config handles configuration loading for the relay and the mixer.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration Files
//
// The relay reads its config from (in order):
//
//  1. Path from SOUNDLOOP_CONFIG environment variable
//  2. ~/.config/soundloop/relay.yaml
//
// The mixer reads ~/.config/soundloop/mixer.yaml; a missing mixer config is
// not an error, the built-in defaults apply.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	server:
//	  http_addr: "${SOUNDLOOP_ADDR}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to empty strings.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	transport:
//	  request_timeout: "10s"
//	  poll_window: "25s"
//	  liveness_window: "15s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Transport selection and timing:
//
//	transport:
//	  mode: "duplex"        # duplex or longpoll
//	  queue_size: 100       # long-poll outbound queue capacity
//	  request_timeout: "10s"
//	  poll_window: "25s"
//	  liveness_window: "15s"
//	  sweep_interval: "60s"
//	  stale_after: "30s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: false
//	  path: "/metrics"
//
// Mixer audio devices and presets:
//
//	audio:
//	  input_source: "alsa_input.pci-0000_00_0e.0.analog-stereo"
//	  output_sink: "bluez_output.00_1F_47_E6_52_0C.1"
//	  default_latency_ms: 30
//	presets:
//	  movie: {input: 120, output: 85, latency: 30}
//
// # Validation
//
// Load() validates:
//
//   - server.http_addr presence
//   - transport.mode values
//   - queue_size non-negativity
//   - Duration format validity
//
// # Usage
//
//	cfg, err := config.Load("/etc/soundloop/relay.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
