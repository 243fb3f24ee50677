package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog installs the process-wide slog handler. Debug turns on
// debug-level output, production deployments keep it at info.
func InitSlog(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
