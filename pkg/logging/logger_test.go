package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"WARNING", WarnLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"invalid", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, InfoLevel)

	logger.Info("leader changed", NodeID(1), Leader(3), Kind("coordinator"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "leader changed", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, float64(1), entry["node_id"])
	assert.Equal(t, float64(3), entry["leader_id"])
	assert.Equal(t, "coordinator", entry["kind"])
	assert.Contains(t, entry, "time")
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, WarnLevel)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept too", Error(errors.New("boom")))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "boom", entries[1]["error"])
}

func TestLoggerWithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, InfoLevel)
	child := logger.With(Component("detector"))

	logger.SetLevel(ErrorLevel)
	child.Info("suppressed")
	assert.Equal(t, ErrorLevel, child.GetLevel())

	logger.SetLevel(DebugLevel)
	child.Debug("visible", Peer(2))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "detector", entries[0]["component"])
	assert.Equal(t, float64(2), entries[0]["peer_id"])
}

func TestNilErrorFieldIsSkipped(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, InfoLevel).Info("ok", Error(nil))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0], "error")
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, InfoLevel)

	StartTimer(logger, "election finished", NodeID(2)).End(String("outcome", "elected"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "elected", entries[0]["outcome"])
	assert.Contains(t, entries[0], "latency")
}

func TestTimedOperationElapsed(t *testing.T) {
	timer := StartTimer(NewNopLogger(), "fan-out")
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Elapsed(), 5*time.Millisecond)
}

func TestTypedFields(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, InfoLevel).Info("fields", Uint64("checksum", 1<<40), Bool("self", true))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, float64(1<<40), entries[0]["checksum"])
	assert.Equal(t, true, entries[0]["self"])
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("nothing")
	assert.Equal(t, logger, logger.With(Count(1)))
	assert.Equal(t, InfoLevel, logger.GetLevel())
}
