package enrichment

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce sync.Once
	runsCounter metric.Int64Counter
)

func InitMetrics(meter metric.Meter) {
	metricsOnce.Do(func() {
		runsCounter, _ = meter.Int64Counter("enrichment_runs_total",
			metric.WithDescription("Queued enrichment tasks run, by operation and outcome"))
	})
}

func recordRun(ctx context.Context, op, outcome string) {
	if runsCounter == nil {
		return
	}
	runsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}
