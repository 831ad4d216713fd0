package logging

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
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	f, err = ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Format: FormatText, Output: &buf})
	ctx := context.Background()

	logger.Debug(ctx, "hidden debug")
	logger.Info(ctx, "hidden info")
	logger.Warn(ctx, nil, "visible warning")
	logger.Error(ctx, errors.New("boom"), "visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warning")
	assert.Contains(t, out, "visible error")
	assert.Contains(t, out, "error=boom")
}

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: FormatJSON, Output: &buf})
	ctx := ContextWithBuildID(context.Background(), "abc")

	logger.WithComponent("graph").With("entry", "main").Info(ctx, "resolved", "modules", 3)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "resolved", record["msg"])
	assert.Equal(t, "graph", record["component"])
	assert.Equal(t, "abc", record["build_id"])
	assert.Equal(t, "main", record["entry"])
	assert.Equal(t, float64(3), record["modules"])
}

func TestWithComponentReplaces(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: FormatText, Output: &buf})

	logger.WithComponent("build").WithComponent("server").Info(context.Background(), "up")
	assert.Contains(t, buf.String(), "component=server")
	assert.NotContains(t, buf.String(), "component=build")
}

func TestWithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&LoggerConfig{Level: LevelDebug, Format: FormatText, Output: &buf})
	_ = parent.With("child", true)

	parent.Info(context.Background(), "parent only")
	assert.NotContains(t, buf.String(), "child=true")
}

func TestBuildIDFrom(t *testing.T) {
	assert.Empty(t, BuildIDFrom(context.Background()))
	assert.Equal(t, "id-1", BuildIDFrom(ContextWithBuildID(context.Background(), "id-1")))
}

func TestPerfLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: FormatText, Output: &buf})

	perf := StartOperation(logger, "split")
	d := perf.End(context.Background(), "chunks", 4)

	assert.GreaterOrEqual(t, d.Nanoseconds(), int64(0))
	assert.Contains(t, buf.String(), "operation=split")
	assert.Contains(t, buf.String(), "chunks=4")
	assert.Contains(t, buf.String(), "duration_ms=")

	buf.Reset()
	perf = StartOperation(logger, "emit")
	perf.EndWithError(context.Background(), errors.New("disk full"))
	assert.Contains(t, buf.String(), "Operation failed")
	assert.Contains(t, buf.String(), `error="disk full"`)
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.NotPanics(t, func() {
		logger.Error(context.Background(), errors.New("x"), "discarded")
	})
}
