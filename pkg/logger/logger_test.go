package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture 将包级日志器替换为写入缓冲区的 JSON 日志器
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	once.Do(func() {})
	prev := logger
	prevLevel := zerolog.GlobalLevel()
	var buf bytes.Buffer
	logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, parseLevel(tt.in), tt.in)
	}
}

func TestWithContext(t *testing.T) {
	buf := capture(t)

	ctx := ContextWithRunID(ContextWithRequestID(context.Background(), "req-1"), "run-1")
	WithContext(ctx).Info().Msg("hello")

	entry := lastEntry(t, buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "run-1", entry["run_id"])
}

func TestSchedulerLogger(t *testing.T) {
	buf := capture(t)

	l := NewSchedulerLoggerContext(ContextWithRunID(context.Background(), "run-2"))
	l.StageFallback("stage2", "超时")
	entry := lastEntry(t, buf)
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "run-2", entry["run_id"])
	assert.Equal(t, "stage2", entry["stage"])
	assert.Equal(t, "warn", entry["level"])

	l.ScheduleComplete("run-2", "success", time.Second, 97.5)
	entry = lastEntry(t, buf)
	assert.Equal(t, "success", entry["status"])
	assert.InDelta(t, 97.5, entry["score"], 1e-9)
}
