package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/chainguard-dev/clog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(buf *bytes.Buffer, level slog.Level) context.Context {
	logger := clog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level}))
	return clog.WithLogger(context.Background(), logger)
}

func TestLeveledHelpers(t *testing.T) {
	buf := new(bytes.Buffer)
	ctx := testContext(buf, slog.LevelInfo)

	Info(ctx, "deployment converged", "instance", "i-1")
	out := buf.String()
	require.Contains(t, out, "deployment converged")
	assert.Contains(t, out, "instance=i-1")

	buf.Reset()
	Debug(ctx, "survey detail")
	assert.Empty(t, buf.String(), "records below the handler level must be dropped")

	buf.Reset()
	Warn(ctx, "reachability wait skipped")
	Error(ctx, "stage failed")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestWithCarriesAttributes(t *testing.T) {
	buf := new(bytes.Buffer)
	ctx := With(testContext(buf, slog.LevelInfo), "deployment", "forge")

	Info(ctx, "stage starting")
	assert.Contains(t, buf.String(), "deployment=forge")
}
