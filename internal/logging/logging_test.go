// ABOUTME: Tests for logger setup and the colorized text handler.
// ABOUTME: Covers level parsing, group-qualified keys, and level filtering.

package logging

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedHandler(lvl slog.Level) (*colorHandler, *strings.Builder) {
	var buf strings.Builder
	return &colorHandler{level: lvl, out: &buf}, &buf
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel("chatty"))
}

func TestSetupReturnsLogger(t *testing.T) {
	require.NotNil(t, Setup("info", "text"))
	require.NotNil(t, Setup("debug", "json"))
}

func TestColorHandlerLevelFiltering(t *testing.T) {
	h, buf := newBufferedHandler(slog.LevelWarn)
	logger := slog.New(h)

	logger.Info("too quiet")
	logger.Warn("loud enough")

	out := buf.String()
	assert.NotContains(t, out, "too quiet")
	assert.Contains(t, out, "loud enough")
}

func TestColorHandlerRendersAttrs(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	h, buf := newBufferedHandler(slog.LevelInfo)
	logger := slog.New(h).With("component", "relay")

	logger.Info("listening", "addr", "127.0.0.1:8080")

	out := buf.String()
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "listening")
	assert.Contains(t, out, "component=relay")
	assert.Contains(t, out, "addr=127.0.0.1:8080")
}

func TestColorHandlerQualifiesGroupedKeys(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	h, buf := newBufferedHandler(slog.LevelInfo)
	logger := slog.New(h).WithGroup("tunnel").With("mode", "duplex")

	logger.Info("connected", "remote", "10.0.0.1")

	out := buf.String()
	assert.Contains(t, out, "tunnel.mode=duplex")
	assert.Contains(t, out, "tunnel.remote=10.0.0.1")
}
