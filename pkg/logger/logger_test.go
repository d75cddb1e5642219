package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLogger_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Info("provider configured", "api_key", "sk-123", "model", "claude")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "***REDACTED***", entry["api_key"])
	assert.Equal(t, "claude", entry["model"])
}

func TestLogger_WithContextAndPair(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx := ContextWithRunID(context.Background(), "run-1")
	ctx = ContextWithPair(ctx, "UBS", "New York")

	log.WithContext(ctx).WithComponent("controller").WithPair("UBS", "New York").
		WithError(errors.New("boom")).Debug("pair failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "UBS/New York", entry["pair"])
	assert.Equal(t, "controller", entry["component"])
	assert.Equal(t, "UBS", entry["target"])
	assert.Equal(t, "New York", entry["filter"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_WithErrorNil(t *testing.T) {
	log := Discard()
	assert.Same(t, log, log.WithError(nil))
}
