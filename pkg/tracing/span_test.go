package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-1")
	cctx, child := StartChildSpan(ctx, "executor")
	_, grandchild := StartChildSpan(cctx, "materialize")
	child.SetAttr("barrels", 3)
	grandchild.End()
	child.End()
	root.End()

	assert.Same(t, root, SpanFromContext(ctx))
	require.Len(t, root.Children(), 1)
	assert.Equal(t, "req-1", grandchild.TraceID)
	v, ok := child.Attr("barrels")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	root.Log(context.Background(), logger, slog.LevelDebug)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "span=search/executor")
	assert.Contains(t, lines[1], "barrels=3")
	assert.Contains(t, lines[2], "span=search/executor/materialize")
}

func TestLogSkippedBelowLevel(t *testing.T) {
	_, root := StartSpan(context.Background(), "search", "req")
	root.End()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	root.Log(context.Background(), logger, slog.LevelDebug)
	assert.Empty(t, buf.String())
}

func TestDetachedChild(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	span.End()
	assert.Empty(t, span.TraceID)
}
