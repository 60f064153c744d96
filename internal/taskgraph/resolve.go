package taskgraph

import (
	"context"
	"fmt"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/search"
	"go.uber.org/zap"
)

// ResolutionThreshold is the cosine similarity a task name must exceed to be
// reused for a new summary.
const ResolutionThreshold = 0.9

// ResolveRequest describes a get-or-create lookup for a task.
type ResolveRequest struct {
	ProjectID    int64
	Summary      string
	Description  string
	OutputSchema string
	// SelectedID is returned as-is when it belongs to ProjectID.
	SelectedID *int64
	// ParentID gets a parent_subtask edge to a newly created task.
	ParentID *int64
}

// GetOrCreateTask resolves a summary to a task id, reusing the most similar
// existing task when its name is close enough and creating one otherwise.
func (o *Orchestrator) GetOrCreateTask(ctx context.Context, req ResolveRequest) (int64, bool, error) {
	if req.Summary == "" {
		return 0, false, fmt.Errorf("task summary is required: %w", model.ErrInvalidArgument)
	}
	if _, err := o.store.GetProject(ctx, req.ProjectID); err != nil {
		return 0, false, err
	}

	if req.SelectedID != nil {
		selected, err := o.store.GetTask(ctx, *req.SelectedID)
		if err == nil && selected.ProjectID == req.ProjectID {
			return selected.ID, false, nil
		}
		o.logger.Warn("selected task not in project, resolving by similarity",
			zap.Int64("selected_id", *req.SelectedID), zap.Int64("project_id", req.ProjectID))
	}

	tasks, err := o.store.ListTasks(ctx, req.ProjectID)
	if err != nil {
		return 0, false, err
	}
	if len(tasks) > 0 {
		summaryVec, err := o.embedder.Embed(ctx, req.Summary)
		if err != nil {
			return 0, false, err
		}
		var (
			bestID  int64
			bestSim = -1.0
		)
		for _, t := range tasks {
			vec, err := o.embedder.Embed(ctx, t.Name)
			if err != nil {
				return 0, false, err
			}
			if sim := search.Cosine(summaryVec, vec); sim > bestSim {
				bestID, bestSim = t.ID, sim
			}
		}
		if bestSim > ResolutionThreshold {
			o.logger.Debug("task resolved by similarity",
				zap.Int64("task_id", bestID), zap.Float64("similarity", bestSim))
			return bestID, false, nil
		}
	}

	description := req.Description
	if description == "" {
		description = req.Summary
	}
	id, err := o.CreateTask(ctx, model.TaskInput{
		ProjectID:    req.ProjectID,
		Name:         req.Summary,
		Description:  description,
		OutputSchema: req.OutputSchema,
	})
	if err != nil {
		return 0, false, err
	}
	if req.ParentID != nil {
		err := o.AddDependency(ctx, model.TaskDependency{
			SourceTaskID:            *req.ParentID,
			DependentTaskID:         id,
			RelationshipDescription: "subtask",
			DataFlow:                model.FlowParentSubtask,
		})
		if err != nil {
			return id, true, fmt.Errorf("failed to link subtask %d to parent %d: %w", id, *req.ParentID, err)
		}
	}
	return id, true, nil
}
