// Package oracle defines the narrow external capabilities the graph core
// consumes (embeddings, execution, human gating, assessment) together with
// an OpenAI-backed implementation and deterministic local fallbacks.
package oracle

import (
	"context"
	"encoding/json"

	"github.com/shaibs3/ResearchGraph/internal/model"
)

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// UpstreamContext is what one incoming dependency contributes to a task.
type UpstreamContext struct {
	Task         model.Task             `json:"task"`
	DataFlow     model.DataFlow         `json:"data_flow"`
	Relationship string                 `json:"relationship"`
	DataSchema   string                 `json:"data_schema"`
	Entities     []model.TaskEntityView `json:"entities"`
}

// DownstreamContext describes what a dependent task expects from this one.
type DownstreamContext struct {
	Task         model.Task     `json:"task"`
	DataFlow     model.DataFlow `json:"data_flow"`
	Relationship string         `json:"relationship"`
	DataSchema   string         `json:"data_schema"`
}

// GateContext is the input to a human-gating decision.
type GateContext struct {
	Task       model.Task          `json:"task"`
	Upstream   []UpstreamContext   `json:"upstream"`
	Downstream []DownstreamContext `json:"downstream"`
}

type GateDecision struct {
	RequiresHuman bool   `json:"requires_human"`
	Rationale     string `json:"rationale"`
}

// GateOracle decides whether a task needs a human before it runs.
type GateOracle interface {
	Decide(ctx context.Context, in GateContext) (GateDecision, error)
}

type ExecutionRequest struct {
	Task     model.Task        `json:"task"`
	Upstream []UpstreamContext `json:"upstream"`
}

// ProposedTask is a follow-up task suggested by an execution. Ref names it
// within the result so proposed dependencies can point at it.
type ProposedTask struct {
	Ref          string `json:"ref"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	OutputSchema string `json:"output_schema"`
}

// ProposedDependency links two tasks by ref. "self" is the executing task, a
// ProposedTask ref is a task from the same result, and a decimal string is an
// existing task id.
type ProposedDependency struct {
	Source       string         `json:"source"`
	Dependent    string         `json:"dependent"`
	Relationship string         `json:"relationship"`
	DataSchema   string         `json:"data_schema"`
	DataFlow     model.DataFlow `json:"data_flow"`
}

type ExecutionResult struct {
	Entities     []json.RawMessage    `json:"entities"`
	Tasks        []ProposedTask       `json:"tasks,omitempty"`
	Dependencies []ProposedDependency `json:"dependencies,omitempty"`
}

// ExecutionDelegate runs a ready task and reports what it produced.
type ExecutionDelegate interface {
	Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
}

// Assessor scores an entity against one criterion. An empty answer is valid.
type Assessor interface {
	Assess(ctx context.Context, criterion model.Criterion, entity model.Entity) (string, error)
}
