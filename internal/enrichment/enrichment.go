// Package enrichment drains the generic work queue. Each queued task names
// an Operation; a successful run deletes the row, anything else leaves it
// for the next pass.
package enrichment

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/store"
	"go.uber.org/zap"
)

// Operation handles queued tasks whose Name matches.
type Operation interface {
	Name() string
	Run(ctx context.Context, task model.QueuedTask) error
}

type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

func NewRegistry(ops ...Operation) *Registry {
	r := &Registry{ops: make(map[string]Operation)}
	for _, op := range ops {
		r.Register(op)
	}
	return r
}

// Register adds op, replacing any operation with the same name.
func (r *Registry) Register(op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op.Name()] = op
}

func (r *Registry) Lookup(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type DrainReport struct {
	Ran     int `json:"ran"`
	Failed  int `json:"failed"`
	Unknown int `json:"unknown"`
}

type Drainer struct {
	queue    store.QueueStore
	registry *Registry
	batch    int
	logger   *zap.Logger
}

// NewDrainer builds a drainer handling up to batch rows per pass
// (batch <= 0 means all pending rows).
func NewDrainer(queue store.QueueStore, registry *Registry, batch int, logger *zap.Logger) *Drainer {
	return &Drainer{queue: queue, registry: registry, batch: batch, logger: logger.Named("enrichment")}
}

// Drain runs one pass over the queue in id order.
func (d *Drainer) Drain(ctx context.Context) (DrainReport, error) {
	var report DrainReport
	tasks, err := d.queue.ListQueuedTasks(ctx, d.batch)
	if err != nil {
		return report, fmt.Errorf("failed to list queued tasks: %w", err)
	}
	for _, task := range tasks {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		logger := d.logger.With(zap.Int64("queued_id", task.ID), zap.String("op", task.Name))
		op, ok := d.registry.Lookup(task.Name)
		if !ok {
			report.Unknown++
			logger.Warn("no operation registered for queued task")
			continue
		}
		if err := op.Run(ctx, task); err != nil {
			report.Failed++
			recordRun(ctx, task.Name, "failure")
			logger.Error("queued task failed, left for retry", zap.Error(err))
			continue
		}
		if err := d.queue.DeleteQueuedTask(ctx, task.ID); err != nil {
			logger.Error("failed to delete completed queued task", zap.Error(err))
		}
		report.Ran++
		recordRun(ctx, task.Name, "success")
	}
	if len(tasks) > 0 {
		d.logger.Info("enrichment queue drained",
			zap.Int("ran", report.Ran),
			zap.Int("failed", report.Failed),
			zap.Int("unknown", report.Unknown))
	}
	return report, nil
}
