package frontier

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce sync.Once

	enqueuedCounter      metric.Int64Counter
	crawledCounter       metric.Int64Counter
	fetchFailuresCounter metric.Int64Counter
)

// InitMetrics registers the frontier counters on meter once per process.
func InitMetrics(meter metric.Meter) {
	metricsOnce.Do(func() {
		enqueuedCounter, _ = meter.Int64Counter("frontier_enqueued_total",
			metric.WithDescription("URLs newly added to the crawl frontier"))
		crawledCounter, _ = meter.Int64Counter("frontier_crawled_total",
			metric.WithDescription("Frontier entries marked crawled"))
		fetchFailuresCounter, _ = meter.Int64Counter("frontier_fetch_failures_total",
			metric.WithDescription("Fetches that failed and left their entry queued"))
	})
}

func add(ctx context.Context, c metric.Int64Counter) {
	if c != nil {
		c.Add(ctx, 1)
	}
}

func recordEnqueued(ctx context.Context)     { add(ctx, enqueuedCounter) }
func recordCrawled(ctx context.Context)      { add(ctx, crawledCounter) }
func recordFetchFailure(ctx context.Context) { add(ctx, fetchFailuresCounter) }
