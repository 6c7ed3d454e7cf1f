package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		out = append(out, record)
	}
	return out
}

func TestRequestIDAttached(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "json")
	ctx := WithRequestID(context.Background(), "req-42")

	FromContext(ctx).Info("from context")
	slog.Default().With("component", "search-handler").InfoContext(ctx, "with context")
	slog.Info("plain")

	records := decodeLines(t, &buf)
	require.Len(t, records, 3)
	assert.Equal(t, "req-42", records[0]["request_id"])
	assert.Equal(t, "req-42", records[1]["request_id"])
	assert.Equal(t, "search-handler", records[1]["component"])
	assert.NotContains(t, records[2], "request_id")
}

func TestNewHonoursLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "WARN", "text")
	log.Info("dropped")
	log.Warn("kept", "source", "aot")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "level=WARN msg=kept source=aot")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo+2, parseLevel("info+2"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestRequestIDMissing(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
}
