package store

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce sync.Once

	providersCreated metric.Int64Counter
)

// InitStoreMetrics registers the store instruments on meter once per process.
func InitStoreMetrics(meter metric.Meter) {
	metricsOnce.Do(func() {
		providersCreated, _ = meter.Int64Counter(
			"graph_store_providers_created_total",
			metric.WithDescription("Graph providers created, by backend"),
		)
	})
}

// RecordProviderCreated counts a provider construction for dbType.
func RecordProviderCreated(ctx context.Context, dbType string) {
	if providersCreated == nil {
		return
	}
	providersCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("db_type", dbType)))
}
