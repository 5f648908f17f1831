package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(t *testing.T, buf *bytes.Buffer, level string) *Logger {
	t.Helper()
	human := false
	logger, err := New(Options{Writer: buf, Level: level, HumanReadable: &human, Component: "solver"})
	require.NoError(t, err)
	return logger
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestLoggerIncludesCorrelationIDAndComponent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := jsonLogger(t, &buf, "debug")

	ctx := WithCorrelationID(context.Background(), "abc123")
	logger.Info(ctx, "solved diagnostic", "diagnostic", "pmp/annual-cycle")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "solved diagnostic", lines[0]["message"])
	assert.Equal(t, "solver", lines[0]["component"])
	assert.Equal(t, "abc123", lines[0]["correlation_id"])
	assert.Equal(t, "pmp/annual-cycle", lines[0]["diagnostic"])
}

func TestLoggerWithOverridesFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := jsonLogger(t, &buf, "info")

	child := logger.With("component", "executor", "execution_id", 7)
	child.Warn(context.Background(), "job failed", "error", errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "executor", lines[0]["component"])
	assert.Equal(t, float64(7), lines[0]["execution_id"])
	assert.Equal(t, "boom", lines[0]["error"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := jsonLogger(t, &buf, "warn")

	logger.Info(context.Background(), "hidden")
	logger.Error(context.Background(), "shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Level: "loud"})
	require.Error(t, err)
}

func TestNoOpLogger(t *testing.T) {
	t.Parallel()

	noOp := NewNoOpLogger()
	noOp.Info(context.Background(), "hello world")
	assert.Equal(t, noOp, noOp.With("key", "value"))
}

func TestBufferedLoggerStoresAndFlushes(t *testing.T) {
	t.Parallel()

	buffer := NewEventBuffer(10)
	bufLogger := buffer.Logger()

	ctx := WithCorrelationID(context.Background(), "buffered")
	bufLogger.Info(ctx, "loading config", "path", "ref.yaml")
	bufLogger.With("component", "config").Warn(ctx, "unknown key", "key", "extra")

	entries := buffer.Entries()
	require.Len(t, entries, 2)
	v, ok := entries[1].Field("component")
	require.True(t, ok)
	assert.Equal(t, "config", v)

	var out bytes.Buffer
	buffer.Flush(jsonLogger(t, &out, "debug"))
	assert.Empty(t, buffer.Entries())

	lines := decodeLines(t, &out)
	require.Len(t, lines, 2)
	assert.Equal(t, "loading config", lines[0]["message"])
	assert.Equal(t, "warn", lines[1]["level"])
	assert.Equal(t, "config", lines[1]["component"])
	assert.Equal(t, "buffered", lines[1]["correlation_id"])
}

func TestEventBufferDropsOldest(t *testing.T) {
	t.Parallel()

	buffer := NewEventBuffer(2)
	logger := buffer.Logger()
	for _, msg := range []string{"a", "b", "c"} {
		logger.Debug(context.Background(), msg)
	}

	entries := buffer.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Message)
	assert.Equal(t, "c", entries[1].Message)
}
