package model

import (
	"encoding/json"
	"time"
)

// DataFlow is the kind of a task dependency edge.
type DataFlow string

const (
	FlowAutomatic     DataFlow = "automatic"
	FlowGatedByUser   DataFlow = "gated_by_user_feedback"
	FlowRethinking    DataFlow = "rethinking_previous_task"
	FlowParentSubtask DataFlow = "parent_subtask"
)

func (f DataFlow) IsValid() bool {
	switch f {
	case FlowAutomatic, FlowGatedByUser, FlowRethinking, FlowParentSubtask:
		return true
	}
	return false
}

// BlocksReadiness reports whether an edge of this kind must be satisfied
// before its dependent task can run. Feedback and hierarchy edges never block.
func (f DataFlow) BlocksReadiness() bool {
	return f != FlowRethinking && f != FlowParentSubtask
}

// TaskStatus tracks a task through Created -> Executing -> outcome.
type TaskStatus string

const (
	TaskCreated            TaskStatus = "created"
	TaskExecuting          TaskStatus = "executing"
	TaskProduced           TaskStatus = "produced"
	TaskFailed             TaskStatus = "failed"
	TaskNeedsClarification TaskStatus = "needs_clarification"
)

type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type Task struct {
	ID                   int64           `json:"id"`
	ProjectID            int64           `json:"project_id"`
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	OutputSchema         string          `json:"output_schema"`
	DescriptionEmbedding []float32       `json:"-"`
	Context              json.RawMessage `json:"context,omitempty"`
	Status               TaskStatus      `json:"status"`
	CreatedAt            time.Time       `json:"created_at"`
}

type TaskInput struct {
	ProjectID            int64
	Name                 string
	Description          string
	OutputSchema         string
	DescriptionEmbedding []float32
	Context              json.RawMessage
}

// TaskDependency is a directed edge from SourceTaskID to DependentTaskID,
// unique per ordered pair.
type TaskDependency struct {
	SourceTaskID            int64    `json:"source_task_id"`
	DependentTaskID         int64    `json:"dependent_task_id"`
	RelationshipDescription string   `json:"relationship_description"`
	DataSchema              string   `json:"data_schema"`
	DataFlow                DataFlow `json:"data_flow"`
}

type TaskEntity struct {
	TaskID         int64   `json:"task_id"`
	EntityID       int64   `json:"entity_id"`
	FeedbackRating float64 `json:"feedback_rating"`
}

// TaskEntityView is an entity linked to a task together with its rating.
type TaskEntityView struct {
	Entity
	FeedbackRating float64 `json:"feedback_rating"`
}
