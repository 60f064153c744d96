package taskgraph

import (
	"context"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/oracle"
	"go.uber.org/zap"
)

// RequiresHuman asks the gating oracle about task. Any oracle failure is
// treated as a request for a human.
func (o *Orchestrator) RequiresHuman(ctx context.Context, task model.Task, upstream []oracle.UpstreamContext, downstream []oracle.DownstreamContext) bool {
	if o.gate == nil {
		return false
	}
	decision, err := o.gate.Decide(ctx, oracle.GateContext{Task: task, Upstream: upstream, Downstream: downstream})
	if err != nil {
		o.logger.Warn("gate oracle failed, requiring human", zap.Int64("task_id", task.ID), zap.Error(err))
		recordGateDecision(ctx, true)
		return true
	}
	o.logger.Debug("gate decision",
		zap.Int64("task_id", task.ID),
		zap.Bool("requires_human", decision.RequiresHuman),
		zap.String("rationale", decision.Rationale))
	recordGateDecision(ctx, decision.RequiresHuman)
	return decision.RequiresHuman
}

// RequiresHumanByID loads the task and its neighbourhood first. A task that
// cannot be loaded requires a human.
func (o *Orchestrator) RequiresHumanByID(ctx context.Context, taskID int64) bool {
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		o.logger.Warn("cannot load task for gating", zap.Int64("task_id", taskID), zap.Error(err))
		return true
	}
	up, err := o.upstream(ctx, taskID)
	if err != nil {
		o.logger.Warn("cannot load upstream for gating", zap.Int64("task_id", taskID), zap.Error(err))
		return true
	}
	down, err := o.downstream(ctx, taskID)
	if err != nil {
		o.logger.Warn("cannot load downstream for gating", zap.Int64("task_id", taskID), zap.Error(err))
		return true
	}
	return o.RequiresHuman(ctx, *task, up, down)
}
