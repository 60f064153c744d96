package postgres

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce sync.Once
	operations  metric.Int64Counter
)

func initProviderMetrics(meter metric.Meter) {
	metricsOnce.Do(func() {
		operations, _ = meter.Int64Counter(
			"graph_store_operations_total",
			metric.WithDescription("Postgres store operations by op and outcome"),
		)
	})
}

func recordOperation(ctx context.Context, op string, err error) {
	if operations == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}
