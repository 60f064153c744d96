package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shaibs3/ResearchGraph/internal/model"
)

const maxContextChars = 2000

const gateSystemPrompt = `You review research tasks before they run automatically.
Answer with a JSON object {"requires_human": bool, "rationale": string}.
Require a human when the upstream material is insufficient or ambiguous for
what the downstream tasks expect, or when the task calls for judgment.`

const delegateSystemPrompt = `You execute one step of a research project.
Answer with a JSON object {"entities": [object, ...], "tasks": [...], "dependencies": [...]}.
Each entity must follow the task's output schema. "tasks" items have
{"ref","name","description","output_schema"}; "dependencies" items have
{"source","dependent","relationship","data_schema","data_flow"} where source
and dependent are "self", a task ref, or an existing task id.`

const assessSystemPrompt = `You assess research material against a criterion.
Answer with a short plain-text verdict, or nothing if the criterion does not apply.`

// ChatGate is a GateOracle backed by a chat model.
type ChatGate struct {
	client *OpenAIClient
	model  string
}

func NewChatGate(client *OpenAIClient, model string) *ChatGate {
	return &ChatGate{client: client, model: model}
}

func (g *ChatGate) Decide(ctx context.Context, in GateContext) (GateDecision, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nDescription: %s\nOutput schema: %s\n", in.Task.Name, in.Task.Description, in.Task.OutputSchema)
	b.WriteString("\nUpstream material:\n")
	for _, up := range in.Upstream {
		fmt.Fprintf(&b, "- from %q (%s): %s\n", up.Task.Name, up.Relationship, summariseEntities(up.Entities))
	}
	b.WriteString("\nDownstream expectations:\n")
	for _, down := range in.Downstream {
		fmt.Fprintf(&b, "- %q expects %s (%s)\n", down.Task.Name, down.DataSchema, down.Relationship)
	}

	out, err := g.client.Complete(ctx, g.model, gateSystemPrompt, b.String(), true)
	if err != nil {
		return GateDecision{}, err
	}
	var decision GateDecision
	if err := json.Unmarshal([]byte(out), &decision); err != nil {
		return GateDecision{}, fmt.Errorf("failed to parse gate decision: %w", err)
	}
	return decision, nil
}

// ChatDelegate is an ExecutionDelegate backed by a chat model.
type ChatDelegate struct {
	client *OpenAIClient
	model  string
}

func NewChatDelegate(client *OpenAIClient, model string) *ChatDelegate {
	return &ChatDelegate{client: client, model: model}
}

func (d *ChatDelegate) Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nDescription: %s\nOutput schema: %s\n", req.Task.Name, req.Task.Description, req.Task.OutputSchema)
	if len(req.Task.Context) > 0 {
		fmt.Fprintf(&b, "Context: %s\n", truncate(string(req.Task.Context)))
	}
	b.WriteString("\nInputs:\n")
	for _, up := range req.Upstream {
		fmt.Fprintf(&b, "- %q (%s, schema %s): %s\n", up.Task.Name, up.Relationship, up.DataSchema, summariseEntities(up.Entities))
	}

	out, err := d.client.Complete(ctx, d.model, delegateSystemPrompt, b.String(), true)
	if err != nil {
		return ExecutionResult{}, err
	}
	var result ExecutionResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to parse execution result: %w", err)
	}
	return result, nil
}

// ChatAssessor is an Assessor backed by a chat model.
type ChatAssessor struct {
	client *OpenAIClient
	model  string
}

func NewChatAssessor(client *OpenAIClient, model string) *ChatAssessor {
	return &ChatAssessor{client: client, model: model}
}

func (a *ChatAssessor) Assess(ctx context.Context, criterion model.Criterion, entity model.Entity) (string, error) {
	prompt := fmt.Sprintf("Criterion %q: %s\n\nMaterial (%s) %s:\n%s",
		criterion.Name, criterion.Prompt, entity.Type, entity.Name, truncate(entity.Detail))
	out, err := a.client.Complete(ctx, a.model, assessSystemPrompt, prompt, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func summariseEntities(entities []model.TaskEntityView) string {
	if len(entities) == 0 {
		return "(no outputs)"
	}
	parts := make([]string, 0, len(entities))
	for _, e := range entities {
		switch {
		case len(e.JSON) > 0:
			parts = append(parts, string(e.JSON))
		case e.Detail != "":
			parts = append(parts, e.Detail)
		default:
			parts = append(parts, e.Name)
		}
	}
	return truncate(strings.Join(parts, "; "))
}

func truncate(s string) string {
	if len(s) <= maxContextChars {
		return s
	}
	return s[:maxContextChars] + "..."
}
