package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
)

var meter = otel.Meter("go.perf_stats")
var cpuGauge, _ = meter.Float64Gauge("cpu_usage")
var memoryGauge, _ = meter.Int64Gauge("allocated_mb")
var liveObjectsGauge, _ = meter.Int64Gauge("live_objects")
var goroutineGauge, _ = meter.Int64Gauge("goroutine_count")

// InstrumentPerfStats publishes process runtime gauges every 30 seconds
// until the context is cancelled.
func InstrumentPerfStats(ctx context.Context) {
	go func() {
		var memStats runtime.MemStats
		ticker := time.NewTicker(time.Second * 30)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runtime.ReadMemStats(&memStats)

				cpuUsage, err := cpu.Percent(time.Minute, false)
				if err == nil && len(cpuUsage) > 0 {
					cpuGauge.Record(ctx, cpuUsage[0])
				} else if err != nil {
					slog.Warn("failed to read cpu usage", "err", err)
				}

				memoryGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				liveObjectsGauge.Record(ctx, int64(memStats.Mallocs)-int64(memStats.Frees))
				goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))
			case <-ctx.Done():
				return
			}
		}
	}()
}
