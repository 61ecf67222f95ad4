package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.in), "level %q", tt.in)
	}
}

func TestInitWritesJSONLines(t *testing.T) {
	t.Cleanup(resetLogger)
	logPath := filepath.Join(t.TempDir(), "logs", "harness.log")
	require.NoError(t, Init(logPath))

	ctx := WithFeature(WithSession(t.Context(), "20260115_001_claude_feat-1"), "feat-1")
	Info(ctx, "session started", slog.String("model", "claude-sonnet-4-5"))
	Flush()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "session started", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "20260115_001_claude_feat-1", entry["session_id"])
	assert.Equal(t, "feat-1", entry["feature_id"])
	assert.Equal(t, "claude-sonnet-4-5", entry["model"])
}

func TestInitAppendsAcrossReinit(t *testing.T) {
	t.Cleanup(resetLogger)
	logPath := filepath.Join(t.TempDir(), "harness.log")

	require.NoError(t, Init(logPath))
	Info(t.Context(), "first")
	Close()

	require.NoError(t, Init(logPath))
	Info(t.Context(), "second")
	Close()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
}

func TestDebugSuppressedAtDefaultLevel(t *testing.T) {
	t.Cleanup(resetLogger)
	logPath := filepath.Join(t.TempDir(), "harness.log")
	require.NoError(t, Init(logPath))

	Debug(t.Context(), "hidden")
	Info(t.Context(), "visible")
	Flush()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestLogLevelGetterFallback(t *testing.T) {
	t.Cleanup(func() {
		resetLogger()
		SetLogLevelGetter(nil)
	})
	SetLogLevelGetter(func() string { return "debug" })

	logPath := filepath.Join(t.TempDir(), "harness.log")
	require.NoError(t, Init(logPath))

	Debug(t.Context(), "config says debug")
	Flush()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "config says debug")
}
