// ABOUTME: Configuration for the local mixer control surface.
// ABOUTME: Audio device names, loopback defaults, and named presets.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MixerConfig represents the local mixer service configuration.
type MixerConfig struct {
	Server  ServerConfig      `yaml:"server"`
	Audio   AudioConfig       `yaml:"audio"`
	Presets map[string]Preset `yaml:"presets"`
	Logging LoggingConfig     `yaml:"logging"`
}

// AudioConfig names the PulseAudio endpoints the mixer drives.
type AudioConfig struct {
	InputSource      string `yaml:"input_source"`
	OutputSink       string `yaml:"output_sink"`
	DefaultLatencyMS int    `yaml:"default_latency_ms"`
}

// Preset is a named combination of levels and loopback latency.
type Preset struct {
	Input   int `yaml:"input"`
	Output  int `yaml:"output"`
	Latency int `yaml:"latency"`
}

// DefaultPresets returns the built-in preset set, used when the config file
// defines none.
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		"movie": {Input: 120, Output: 85, Latency: 30},
		"music": {Input: 100, Output: 80, Latency: 20},
		"voice": {Input: 140, Output: 70, Latency: 25},
		"night": {Input: 80, Output: 50, Latency: 30},
	}
}

// LoadMixer reads a mixer configuration file. A missing file is not an error:
// the mixer runs with defaults, matching the original behavior of an optional
// per-user config.
func LoadMixer(path string) (*MixerConfig, error) {
	cfg := &MixerConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *MixerConfig) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:5000"
	}
	if c.Audio.InputSource == "" {
		c.Audio.InputSource = "alsa_input.pci-0000_00_0e.0.analog-stereo"
	}
	if c.Audio.OutputSink == "" {
		c.Audio.OutputSink = "bluez_output.00_1F_47_E6_52_0C.1"
	}
	if c.Audio.DefaultLatencyMS == 0 {
		c.Audio.DefaultLatencyMS = 30
	}
	if len(c.Presets) == 0 {
		c.Presets = DefaultPresets()
	}
}
