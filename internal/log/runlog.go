package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
	"github.com/gosimple/slug"
	slogmulti "github.com/samber/slog-multi"
)

// SetupRunLogging tees all log output for one pipeline run to a file under
// logsDirectory, in addition to whatever handler is already on the context.
//
// The returned function closes the log file and must be called when the run
// finishes. If logsDirectory is empty, logging is left untouched.
func SetupRunLogging(ctx context.Context, logsDirectory, runID, deployment string) (context.Context, func()) {
	if logsDirectory == "" {
		return ctx, func() {}
	}

	runDir := filepath.Join(logsDirectory, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		Warn(ctx, "failed to create run log directory", "path", runDir, "error", err.Error())
		return ctx, func() {}
	}

	logPath := filepath.Join(runDir, fmt.Sprintf("%s.log", slug.Make(deployment)))
	logFile, err := os.Create(logPath)
	if err != nil {
		Warn(ctx, "failed to create run log file", "path", logPath, "error", err.Error())
		return ctx, func() {}
	}

	handler := slogmulti.Fanout(
		clog.FromContext(ctx).Handler(),
		slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)

	Info(ctx, "logging run output to file", "path", logPath)
	ctx = clog.WithLogger(ctx, clog.New(handler))

	return ctx, func() {
		if err := logFile.Close(); err != nil {
			Warn(ctx, "failed to close run log file", "path", logPath, "error", err.Error())
		}
	}
}
