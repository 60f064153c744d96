package taskgraph

import (
	"context"
	"sync"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce sync.Once

	executionsCounter    metric.Int64Counter
	gateDecisionsCounter metric.Int64Counter
)

// InitMetrics registers the orchestrator counters on meter once per process.
func InitMetrics(meter metric.Meter) {
	metricsOnce.Do(func() {
		executionsCounter, _ = meter.Int64Counter("task_executions_total",
			metric.WithDescription("Task executions by resulting status"))
		gateDecisionsCounter, _ = meter.Int64Counter("task_gate_decisions_total",
			metric.WithDescription("Human-gating decisions"))
	})
}

func recordExecution(ctx context.Context, status model.TaskStatus) {
	if executionsCounter == nil {
		return
	}
	executionsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func recordGateDecision(ctx context.Context, requiresHuman bool) {
	if gateDecisionsCounter == nil {
		return
	}
	gateDecisionsCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("requires_human", requiresHuman)))
}
