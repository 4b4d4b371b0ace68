package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: FormatJSON, Output: &buf})

	l.WithComponent("cache").WithRunID("r1").WithField("env", "py312").Info("decided %s", "keep")

	line := decodeLine(t, &buf)
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "decided keep", line["message"])
	assert.Equal(t, "cache", line["component"])
	assert.Equal(t, "r1", line["run_id"])
	assert.Equal(t, "py312", line["env"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: FormatJSON, Output: &buf})

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.WithError(errors.New("boom")).Warn("shown")
	line := decodeLine(t, &buf)
	assert.Equal(t, "boom", line["error"])
}

func TestLogger_AutoFormatOnBuffer(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Format: FormatAuto, Output: &buf}).Info("plain")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "non-terminal output should be JSON: %q", buf.String())
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Format: FormatJSON, Output: &buf}).WithFields(map[string]any{"a": 1, "b": "x"}).Error("e")
	line := decodeLine(t, &buf)
	assert.Equal(t, float64(1), line["a"])
	assert.Equal(t, "x", line["b"])
}

func TestContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: FormatJSON, Output: &buf})

	ctx := l.WithContext(context.Background())
	assert.Same(t, l, FromContext(ctx))

	FromContext(context.Background()).Error("dropped")
	assert.Zero(t, buf.Len())
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("nothing")
	assert.NotNil(t, l.Zerolog())
}
