package main

import (
	"context"
	"log/slog"

	"moodle-bridge/cmd/moodle-bridge/commands"
	"moodle-bridge/lib/telemetry"
)

func main() {
	ctx := context.Background()

	otel, err := telemetry.SetupFromEnv(ctx, "moodle-bridge-cli")
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without it", "err", err)
	}
	defer otel.Shutdown(ctx)

	telemetry.InitSlog(true)
	telemetry.InstrumentPerfStats(ctx)
	commands.ExecuteContext(ctx)
}
