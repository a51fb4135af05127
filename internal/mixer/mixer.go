// ABOUTME: PulseAudio control surface: volumes, loopback routing, and presets via pactl.
// ABOUTME: Shell-outs go through a Runner interface so tests can fake pactl.

package mixer

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/soundloop/soundloop-relay/internal/config"
)

// Level bounds enforced on set operations.
const (
	MaxInputLevel  = 150
	MaxOutputLevel = 100
	MinLatencyMS   = 10
	MaxLatencyMS   = 100
)

var volumeRe = regexp.MustCompile(`(\d+)%`)

// Runner executes a pactl command and returns its trimmed stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs pactl through the shell with a per-command timeout.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "pactl", args...).Output()
	if err != nil {
		return "", fmt.Errorf("pactl %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Status is the mixer state reported at /api/status.
type Status struct {
	Input    int  `json:"input"`
	Output   int  `json:"output"`
	Latency  int  `json:"latency"`
	Loopback bool `json:"loopback"`
}

// Mixer drives one input source and one output sink, with an optional
// module-loopback routing between them.
type Mixer struct {
	runner  Runner
	logger  *slog.Logger
	source  string
	sink    string
	latency int
	presets map[string]config.Preset

	mu             sync.Mutex
	loopbackModule int // pactl module id; -1 when no loopback is loaded
}

// New creates a Mixer from config. Call DetectLoopback afterwards to adopt a
// loopback module that survived a previous run.
func New(cfg *config.MixerConfig, runner Runner, logger *slog.Logger) *Mixer {
	return &Mixer{
		runner:         runner,
		logger:         logger,
		source:         cfg.Audio.InputSource,
		sink:           cfg.Audio.OutputSink,
		latency:        cfg.Audio.DefaultLatencyMS,
		presets:        cfg.Presets,
		loopbackModule: -1,
	}
}

// DetectLoopback scans loaded modules for an existing loopback on our source
// and adopts its id, so restarts do not double-load the module.
func (m *Mixer) DetectLoopback(ctx context.Context) bool {
	out, err := m.runner.Run(ctx, "list", "short", "modules")
	if err != nil {
		m.logger.Warn("listing modules failed", "error", err)
		return false
	}

	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "module-loopback") || !strings.Contains(line, m.source) {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) == 0 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			continue
		}
		m.mu.Lock()
		m.loopbackModule = id
		m.mu.Unlock()
		m.logger.Info("adopted existing loopback module", "module_id", id)
		return true
	}
	return false
}

// Status reads current volumes and loopback state.
func (m *Mixer) Status(ctx context.Context) Status {
	m.mu.Lock()
	latency := m.latency
	active := m.loopbackModule >= 0
	m.mu.Unlock()

	return Status{
		Input:    m.getVolume(ctx, true),
		Output:   m.getVolume(ctx, false),
		Latency:  latency,
		Loopback: active,
	}
}

// SetInput sets the input source level, clamped to 0..150.
// Returns whether pactl succeeded and the requested value.
func (m *Mixer) SetInput(ctx context.Context, level int) (bool, int) {
	return m.setVolume(ctx, clamp(level, 0, MaxInputLevel), true), level
}

// SetOutput sets the output sink level, clamped to 0..100.
func (m *Mixer) SetOutput(ctx context.Context, level int) (bool, int) {
	return m.setVolume(ctx, clamp(level, 0, MaxOutputLevel), false), level
}

// SetLatency updates the loopback latency, clamped to 10..100 ms. When a
// loopback is active it is reloaded with the new latency.
func (m *Mixer) SetLatency(ctx context.Context, ms int) (bool, int) {
	ms = clamp(ms, MinLatencyMS, MaxLatencyMS)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.latency = ms
	if m.loopbackModule >= 0 {
		m.disableLocked(ctx)
		m.enableLocked(ctx, ms)
	}
	return true, ms
}

// SetLoopback enables routing when state is "on", disables it otherwise.
// Returns whether the operation succeeded and whether routing is now active.
func (m *Mixer) SetLoopback(ctx context.Context, state string) (success, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state == "on" {
		success = m.enableLocked(ctx, m.latency)
	} else {
		success = m.disableLocked(ctx)
	}
	return success, m.loopbackModule >= 0
}

// ApplyPreset applies a named preset: both levels plus, when routing is
// active, the preset's latency. Returns false for an unknown name.
func (m *Mixer) ApplyPreset(ctx context.Context, name string) bool {
	preset, ok := m.presets[name]
	if !ok {
		return false
	}

	m.setVolume(ctx, clamp(preset.Input, 0, MaxInputLevel), true)
	m.setVolume(ctx, clamp(preset.Output, 0, MaxOutputLevel), false)

	m.mu.Lock()
	m.latency = clamp(preset.Latency, MinLatencyMS, MaxLatencyMS)
	if m.loopbackModule >= 0 {
		m.disableLocked(ctx)
		m.enableLocked(ctx, m.latency)
	}
	m.mu.Unlock()

	m.logger.Info("applied preset", "preset", name)
	return true
}

// enableLocked loads module-loopback. Callers hold m.mu.
func (m *Mixer) enableLocked(ctx context.Context, latencyMS int) bool {
	if m.loopbackModule >= 0 {
		return true
	}
	out, err := m.runner.Run(ctx,
		"load-module", "module-loopback",
		"source="+m.source, "sink="+m.sink,
		fmt.Sprintf("latency_msec=%d", latencyMS),
		"source_dont_move=true", "sink_dont_move=true",
	)
	if err != nil {
		m.logger.Warn("loading loopback failed", "error", err)
		return false
	}
	id, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		m.logger.Warn("unexpected load-module output", "output", out)
		return false
	}
	m.loopbackModule = id
	m.logger.Info("loopback enabled", "module_id", id, "latency_ms", latencyMS)
	return true
}

// disableLocked unloads the loopback module. Callers hold m.mu.
func (m *Mixer) disableLocked(ctx context.Context) bool {
	if m.loopbackModule < 0 {
		return true
	}
	if _, err := m.runner.Run(ctx, "unload-module", strconv.Itoa(m.loopbackModule)); err != nil {
		m.logger.Warn("unloading loopback failed", "module_id", m.loopbackModule, "error", err)
		return false
	}
	m.logger.Info("loopback disabled", "module_id", m.loopbackModule)
	m.loopbackModule = -1
	return true
}

func (m *Mixer) getVolume(ctx context.Context, isSource bool) int {
	cmd, target, fallback := "get-sink-volume", m.sink, 80
	if isSource {
		cmd, target, fallback = "get-source-volume", m.source, 100
	}
	out, err := m.runner.Run(ctx, cmd, target)
	if err != nil {
		return fallback
	}
	match := volumeRe.FindStringSubmatch(out)
	if match == nil {
		return fallback
	}
	v, err := strconv.Atoi(match[1])
	if err != nil {
		return fallback
	}
	return v
}

func (m *Mixer) setVolume(ctx context.Context, percent int, isSource bool) bool {
	cmd, target := "set-sink-volume", m.sink
	if isSource {
		cmd, target = "set-source-volume", m.source
	}
	if _, err := m.runner.Run(ctx, cmd, target, fmt.Sprintf("%d%%", percent)); err != nil {
		m.logger.Warn("setting volume failed", "target", target, "error", err)
		return false
	}
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
