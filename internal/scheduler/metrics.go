package scheduler

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
		runsCounter, _ = meter.Int64Counter("scheduler_job_runs_total",
			metric.WithDescription("Scheduled job runs by job and outcome, including skipped triggers"))
	})
}

func recordRun(ctx context.Context, job, outcome string) {
	if runsCounter == nil {
		return
	}
	runsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("outcome", outcome),
	))
}
