package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3worlds/aot/pkg/config"
	"github.com/3worlds/aot/pkg/logger"
)

func TestSpanTree(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-1")
	tracer := NewTracer(config.TracingConfig{Enabled: true, SampleRate: 1})
	var buf bytes.Buffer
	tracer.logger = slog.New(slog.NewJSONHandler(&buf, nil))

	ctx, root := tracer.Start(ctx, "search")
	_, child := StartChildSpan(ctx, "source:aot")
	child.SetAttr("hits", 3)
	child.End()
	tracer.Finish(root)

	require.Len(t, root.Children, 1)
	assert.Equal(t, "req-1", root.Children[0].TraceID)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"span":"search"`)
	assert.Contains(t, lines[1], `"hits":3`)
}

func TestFinishRespectsDisabled(t *testing.T) {
	tracer := NewTracer(config.TracingConfig{Enabled: false, SampleRate: 1})
	var buf bytes.Buffer
	tracer.logger = slog.New(slog.NewJSONHandler(&buf, nil))
	_, root := tracer.Start(context.Background(), "search")
	tracer.Finish(root)
	assert.Empty(t, buf.String())
	assert.NotZero(t, root.EndTime)
}
