// ABOUTME: Configuration loading and parsing for the soundloop relay and mixer.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport mode names accepted in transport.mode.
const (
	ModeDuplex   = "duplex"
	ModeLongPoll = "longpoll"
)

// Config represents the complete relay configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TransportConfig selects the controller transport and its timing knobs.
type TransportConfig struct {
	Mode      string `yaml:"mode"`       // "duplex" or "longpoll"
	QueueSize int    `yaml:"queue_size"` // long-poll outbound queue capacity

	RequestTimeout time.Duration `yaml:"-"`
	PollWindow     time.Duration `yaml:"-"`
	LivenessWindow time.Duration `yaml:"-"`
	SweepInterval  time.Duration `yaml:"-"`
	StaleAfter     time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout"`
	PollWindowRaw     string `yaml:"poll_window"`
	LivenessWindowRaw string `yaml:"liveness_window"`
	SweepIntervalRaw  string `yaml:"sweep_interval"`
	StaleAfterRaw     string `yaml:"stale_after"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a relay configuration file from the given path.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in zero-valued fields with working defaults.
func (c *Config) applyDefaults() {
	if c.Transport.Mode == "" {
		c.Transport.Mode = ModeDuplex
	}
	if c.Transport.QueueSize == 0 {
		c.Transport.QueueSize = 100
	}
	if c.Transport.RequestTimeout == 0 {
		c.Transport.RequestTimeout = 10 * time.Second
	}
	if c.Transport.PollWindow == 0 {
		c.Transport.PollWindow = 25 * time.Second
	}
	if c.Transport.LivenessWindow == 0 {
		c.Transport.LivenessWindow = 15 * time.Second
	}
	if c.Transport.SweepInterval == 0 {
		c.Transport.SweepInterval = 60 * time.Second
	}
	if c.Transport.StaleAfter == 0 {
		c.Transport.StaleAfter = 30 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Transport.Mode != ModeDuplex && c.Transport.Mode != ModeLongPoll {
		return fmt.Errorf("transport.mode must be %q or %q, got %q", ModeDuplex, ModeLongPoll, c.Transport.Mode)
	}

	if c.Transport.QueueSize < 0 {
		return fmt.Errorf("transport.queue_size must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Transport.RequestTimeoutRaw, "request_timeout", &cfg.Transport.RequestTimeout},
		{cfg.Transport.PollWindowRaw, "poll_window", &cfg.Transport.PollWindow},
		{cfg.Transport.LivenessWindowRaw, "liveness_window", &cfg.Transport.LivenessWindow},
		{cfg.Transport.SweepIntervalRaw, "sweep_interval", &cfg.Transport.SweepInterval},
		{cfg.Transport.StaleAfterRaw, "stale_after", &cfg.Transport.StaleAfter},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
