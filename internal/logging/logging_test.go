package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
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
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json", Level: "warn"}, &buf)

	l.Info("hidden")
	l.Warn("shown", "key", "DEADBEEF")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "DEADBEEF", rec["key"])
	assert.Equal(t, "WARN", rec["level"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug"}, &buf)
	l.Debug("trying", "stage", "curated")

	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "stage=curated")
}

func TestWithRun(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json"}, &buf)

	ctx, tagged := WithRun(context.Background(), l)
	id := RunID(ctx)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	tagged.Info("start")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, id, rec["run"])

	// An existing id is kept.
	ctx2, _ := WithRun(ctx, l)
	assert.Equal(t, id, RunID(ctx2))
}

func TestRunIDAbsent(t *testing.T) {
	assert.Empty(t, RunID(context.Background()))
	assert.NotEqual(t, NewRunID(), NewRunID())
}

func TestSetupInstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l := Setup(Config{Format: "json", Level: "debug"}, &buf)
	assert.Same(t, l, slog.Default())

	Component(nil, "checkpoint").Debug("saved")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "checkpoint", rec["component"])
	assert.Equal(t, "saved", rec["msg"])
}

func TestComponentKeepsParentAttrs(t *testing.T) {
	var buf bytes.Buffer
	_, parent := WithRun(context.Background(), New(Config{Format: "json"}, &buf))

	Component(parent, "executor").Info("retrying")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "executor", rec["component"])
	assert.NotEmpty(t, rec["run"])
}
