package taskgraph

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shaibs3/ResearchGraph/internal/model"
)

// PlannedTask is one step of a plan. Ref names it for the plan's edges.
type PlannedTask struct {
	Ref          string `json:"ref"`
	Summary      string `json:"summary"`
	Description  string `json:"description"`
	OutputSchema string `json:"output_schema"`
	SelectedID   *int64 `json:"selected_id,omitempty"`
	// Parent is a ref or an existing task id.
	Parent string `json:"parent,omitempty"`
}

// PlannedDependency joins two plan refs or existing task ids.
type PlannedDependency struct {
	Source       string         `json:"source"`
	Dependent    string         `json:"dependent"`
	Relationship string         `json:"relationship"`
	DataSchema   string         `json:"data_schema"`
	DataFlow     model.DataFlow `json:"data_flow"`
}

type Plan struct {
	Tasks        []PlannedTask       `json:"tasks"`
	Dependencies []PlannedDependency `json:"dependencies"`
}

type PlanResult struct {
	Tasks   map[string]int64 `json:"tasks"`
	Created []int64          `json:"created"`
	Run     AutoReport       `json:"run"`
}

// ApplyPlan resolves or creates the planned tasks, adds the edges, then runs
// one auto-execution pass over the tasks created by this call.
func (o *Orchestrator) ApplyPlan(ctx context.Context, projectID int64, plan Plan) (PlanResult, error) {
	result := PlanResult{Tasks: make(map[string]int64)}
	for _, pd := range plan.Dependencies {
		if pd.DataFlow != "" && !pd.DataFlow.IsValid() {
			return result, fmt.Errorf("data flow %q: %w", pd.DataFlow, model.ErrInvalidArgument)
		}
	}

	for i, pt := range plan.Tasks {
		req := ResolveRequest{
			ProjectID:    projectID,
			Summary:      pt.Summary,
			Description:  pt.Description,
			OutputSchema: pt.OutputSchema,
			SelectedID:   pt.SelectedID,
		}
		if pt.Parent != "" {
			parent, ok := lookupRef(result.Tasks, pt.Parent)
			if !ok {
				return result, fmt.Errorf("plan task %d: unknown parent %q: %w", i, pt.Parent, model.ErrInvalidArgument)
			}
			req.ParentID = &parent
		}
		id, created, err := o.GetOrCreateTask(ctx, req)
		if err != nil {
			return result, fmt.Errorf("plan task %d: %w", i, err)
		}
		ref := pt.Ref
		if ref == "" {
			ref = strconv.Itoa(i)
		}
		result.Tasks[ref] = id
		if created {
			result.Created = append(result.Created, id)
		}
	}

	for _, pd := range plan.Dependencies {
		src, ok1 := lookupRef(result.Tasks, pd.Source)
		dst, ok2 := lookupRef(result.Tasks, pd.Dependent)
		if !ok1 || !ok2 {
			return result, fmt.Errorf("dependency %q -> %q: unknown ref: %w", pd.Source, pd.Dependent, model.ErrInvalidArgument)
		}
		if src == dst {
			continue
		}
		flow := pd.DataFlow
		if flow == "" {
			flow = model.FlowAutomatic
		}
		err := o.AddDependency(ctx, model.TaskDependency{
			SourceTaskID:            src,
			DependentTaskID:         dst,
			RelationshipDescription: pd.Relationship,
			DataSchema:              pd.DataSchema,
			DataFlow:                flow,
		})
		if err != nil {
			return result, err
		}
	}

	result.Run = o.AutoExecute(ctx, result.Created)
	return result, nil
}

// lookupRef resolves a plan ref first, then a literal task id.
func lookupRef(refs map[string]int64, ref string) (int64, bool) {
	if id, ok := refs[ref]; ok {
		return id, true
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	return id, err == nil
}
