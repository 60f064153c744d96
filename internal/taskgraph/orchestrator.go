// Package taskgraph runs research tasks over a dependency graph whose
// feedback and hierarchy edges are allowed to form cycles. Readiness looks
// only at a task's direct blocking predecessors, so evaluation never recurses.
package taskgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/oracle"
	"github.com/shaibs3/ResearchGraph/internal/store"
	"go.uber.org/zap"
)

// ErrNotReady is returned when a task with unmet blocking dependencies is
// asked to execute.
var ErrNotReady = errors.New("task is not ready")

// Store is the slice of the graph provider the orchestrator needs.
type Store interface {
	store.EntityStore
	store.TaskStore
}

type Orchestrator struct {
	store    Store
	embedder oracle.Embedder
	delegate oracle.ExecutionDelegate
	gate     oracle.GateOracle
	logger   *zap.Logger
}

// NewOrchestrator wires the orchestrator. embedder should not fail (wrap it
// in oracle.SafeEmbedder).
func NewOrchestrator(st Store, embedder oracle.Embedder, delegate oracle.ExecutionDelegate, gate oracle.GateOracle, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:    st,
		embedder: embedder,
		delegate: delegate,
		gate:     gate,
		logger:   logger.Named("taskgraph"),
	}
}

func (o *Orchestrator) CreateProject(ctx context.Context, name, description string) (int64, error) {
	return o.store.CreateProject(ctx, name, description)
}

// CreateTask stores a task, embedding its description when no embedding is
// supplied.
func (o *Orchestrator) CreateTask(ctx context.Context, in model.TaskInput) (int64, error) {
	if len(in.DescriptionEmbedding) == 0 && in.Description != "" {
		vec, err := o.embedder.Embed(ctx, in.Description)
		if err != nil {
			return 0, fmt.Errorf("failed to embed task description: %w", err)
		}
		in.DescriptionEmbedding = vec
	}
	id, err := o.store.CreateTask(ctx, in)
	if err != nil {
		return 0, err
	}
	o.logger.Info("task created", zap.Int64("task_id", id), zap.Int64("project_id", in.ProjectID), zap.String("name", in.Name))
	return id, nil
}

// AddDependency creates or updates an edge between two tasks of the same
// project.
func (o *Orchestrator) AddDependency(ctx context.Context, dep model.TaskDependency) error {
	if !dep.DataFlow.IsValid() {
		return fmt.Errorf("data flow %q: %w", dep.DataFlow, model.ErrInvalidArgument)
	}
	source, err := o.store.GetTask(ctx, dep.SourceTaskID)
	if err != nil {
		return err
	}
	dependent, err := o.store.GetTask(ctx, dep.DependentTaskID)
	if err != nil {
		return err
	}
	if source.ProjectID != dependent.ProjectID {
		return fmt.Errorf("tasks %d and %d belong to different projects: %w", source.ID, dependent.ID, model.ErrInvalidArgument)
	}
	return o.store.AddDependency(ctx, dep)
}

// IsReady reports whether every blocking incoming edge comes from a task
// that already has at least one json_data output.
func (o *Orchestrator) IsReady(ctx context.Context, taskID int64) (bool, error) {
	if _, err := o.store.GetTask(ctx, taskID); err != nil {
		return false, err
	}
	deps, err := o.store.Dependencies(ctx, taskID)
	if err != nil {
		return false, err
	}
	for _, d := range deps {
		if !d.DataFlow.BlocksReadiness() {
			continue
		}
		n, err := o.store.CountTaskOutputs(ctx, d.SourceTaskID, model.EntityJSONData)
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}

// ReadyTasks lists the project's tasks that are ready, in creation order.
func (o *Orchestrator) ReadyTasks(ctx context.Context, projectID int64) ([]model.Task, error) {
	if _, err := o.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	tasks, err := o.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var ready []model.Task
	for _, t := range tasks {
		ok, err := o.IsReady(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready, nil
}

// upstream gathers every incoming edge with the source task's linked entities.
func (o *Orchestrator) upstream(ctx context.Context, taskID int64) ([]oracle.UpstreamContext, error) {
	deps, err := o.store.Dependencies(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]oracle.UpstreamContext, 0, len(deps))
	for _, d := range deps {
		src, err := o.store.GetTask(ctx, d.SourceTaskID)
		if err != nil {
			return nil, err
		}
		entities, err := o.store.TaskEntities(ctx, d.SourceTaskID)
		if err != nil {
			return nil, err
		}
		out = append(out, oracle.UpstreamContext{
			Task:         *src,
			DataFlow:     d.DataFlow,
			Relationship: d.RelationshipDescription,
			DataSchema:   d.DataSchema,
			Entities:     entities,
		})
	}
	return out, nil
}

func (o *Orchestrator) downstream(ctx context.Context, taskID int64) ([]oracle.DownstreamContext, error) {
	deps, err := o.store.Dependents(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]oracle.DownstreamContext, 0, len(deps))
	for _, d := range deps {
		dst, err := o.store.GetTask(ctx, d.DependentTaskID)
		if err != nil {
			return nil, err
		}
		out = append(out, oracle.DownstreamContext{
			Task:         *dst,
			DataFlow:     d.DataFlow,
			Relationship: d.RelationshipDescription,
			DataSchema:   d.DataSchema,
		})
	}
	return out, nil
}
