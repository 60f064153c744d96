package taskgraph

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/oracle"
	"github.com/shaibs3/ResearchGraph/internal/store/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const dim = 64

// scriptedDelegate returns canned results per task name and records calls.
type scriptedDelegate struct {
	mu      sync.Mutex
	results map[string]oracle.ExecutionResult
	errs    map[string]error
	calls   []string
	seen    map[string][]oracle.UpstreamContext
}

func newScriptedDelegate() *scriptedDelegate {
	return &scriptedDelegate{
		results: make(map[string]oracle.ExecutionResult),
		errs:    make(map[string]error),
		seen:    make(map[string][]oracle.UpstreamContext),
	}
}

func (d *scriptedDelegate) produce(name string, payloads ...string) {
	var res oracle.ExecutionResult
	for _, p := range payloads {
		res.Entities = append(res.Entities, json.RawMessage(p))
	}
	d.results[name] = res
}

func (d *scriptedDelegate) Execute(_ context.Context, req oracle.ExecutionRequest) (oracle.ExecutionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, req.Task.Name)
	d.seen[req.Task.Name] = req.Upstream
	if err := d.errs[req.Task.Name]; err != nil {
		return oracle.ExecutionResult{}, err
	}
	return d.results[req.Task.Name], nil
}

type fixedGate struct {
	requireFor map[string]bool
	err        error
}

func (g fixedGate) Decide(_ context.Context, in oracle.GateContext) (oracle.GateDecision, error) {
	if g.err != nil {
		return oracle.GateDecision{}, g.err
	}
	return oracle.GateDecision{RequiresHuman: g.requireFor[in.Task.Name]}, nil
}

type fixture struct {
	store    *memory.InMemoryProvider
	delegate *scriptedDelegate
	orch     *Orchestrator
	project  int64
}

func newFixture(t *testing.T, gate oracle.GateOracle) *fixture {
	t.Helper()
	st := memory.NewInMemoryProvider()
	delegate := newScriptedDelegate()
	orch := NewOrchestrator(st, oracle.NewHashEmbedder(dim), delegate, gate, zap.NewNop())
	project, err := orch.CreateProject(context.Background(), "survey", "literature survey")
	require.NoError(t, err)
	return &fixture{store: st, delegate: delegate, orch: orch, project: project}
}

func (f *fixture) task(t *testing.T, name string) int64 {
	t.Helper()
	id, err := f.orch.CreateTask(context.Background(), model.TaskInput{ProjectID: f.project, Name: name, Description: name})
	require.NoError(t, err)
	return id
}

func (f *fixture) edge(t *testing.T, src, dst int64, flow model.DataFlow) {
	t.Helper()
	require.NoError(t, f.orch.AddDependency(context.Background(), model.TaskDependency{
		SourceTaskID: src, DependentTaskID: dst, DataFlow: flow,
	}))
}

func (f *fixture) ready(t *testing.T, id int64) bool {
	t.Helper()
	ok, err := f.orch.IsReady(context.Background(), id)
	require.NoError(t, err)
	return ok
}

func (f *fixture) status(t *testing.T, id int64) model.TaskStatus {
	t.Helper()
	task, err := f.store.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task.Status
}

func TestIsReady_BlockingEdgesNeedOutputs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.task(t, "collect papers")
	b := f.task(t, "extract claims")
	f.edge(t, a, b, model.FlowAutomatic)

	require.True(t, f.ready(t, a))
	require.False(t, f.ready(t, b))

	f.delegate.produce("collect papers", `{"title":"attention is all you need"}`)
	outcome, err := f.orch.ExecuteTask(ctx, a)
	require.NoError(t, err)
	require.Equal(t, model.TaskProduced, outcome.Status)
	require.Len(t, outcome.Entities, 1)

	require.True(t, f.ready(t, b))
}

func TestIsReady_GatedEdgeBlocks(t *testing.T) {
	f := newFixture(t, nil)
	a := f.task(t, "draft outline")
	b := f.task(t, "write section")
	f.edge(t, a, b, model.FlowGatedByUser)
	require.False(t, f.ready(t, b))
}

func TestIsReady_FeedbackAndHierarchyEdgesDoNotBlock(t *testing.T) {
	f := newFixture(t, nil)
	a := f.task(t, "summarise findings")
	b := f.task(t, "critique summary")
	parent := f.task(t, "write report")
	f.edge(t, a, b, model.FlowAutomatic)
	// b feeds back into a, forming a cycle.
	f.edge(t, b, a, model.FlowRethinking)
	f.edge(t, parent, a, model.FlowParentSubtask)

	require.True(t, f.ready(t, a))
	require.False(t, f.ready(t, b))
	require.True(t, f.ready(t, parent))
}

func TestIsReady_StaysReadyOnceSatisfied(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.task(t, "find datasets")
	b := f.task(t, "compare datasets")
	f.edge(t, a, b, model.FlowAutomatic)

	f.delegate.produce("find datasets", `{"name":"imagenet"}`)
	_, err := f.orch.ExecuteTask(ctx, a)
	require.NoError(t, err)
	require.True(t, f.ready(t, b))

	// A later run that yields nothing does not remove earlier outputs.
	f.delegate.produce("find datasets")
	outcome, err := f.orch.ExecuteTask(ctx, a)
	require.NoError(t, err)
	require.Equal(t, model.TaskProduced, outcome.Status)
	require.True(t, f.ready(t, b))
}

func TestIsReady_UnknownTask(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.orch.IsReady(context.Background(), 999)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestAddDependency_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.task(t, "a")
	b := f.task(t, "b")

	err := f.orch.AddDependency(ctx, model.TaskDependency{SourceTaskID: a, DependentTaskID: b, DataFlow: "sideways"})
	require.ErrorIs(t, err, model.ErrInvalidArgument)

	other, err := f.orch.CreateProject(ctx, "other", "")
	require.NoError(t, err)
	c, err := f.orch.CreateTask(ctx, model.TaskInput{ProjectID: other, Name: "c"})
	require.NoError(t, err)
	err = f.orch.AddDependency(ctx, model.TaskDependency{SourceTaskID: a, DependentTaskID: c, DataFlow: model.FlowAutomatic})
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestReadyTasks(t *testing.T) {
	f := newFixture(t, nil)
	a := f.task(t, "first")
	b := f.task(t, "second")
	c := f.task(t, "third")
	f.edge(t, a, b, model.FlowAutomatic)

	ready, err := f.orch.ReadyTasks(context.Background(), f.project)
	require.NoError(t, err)
	var ids []int64
	for _, task := range ready {
		ids = append(ids, task.ID)
	}
	require.Equal(t, []int64{a, c}, ids)
}

func TestExecuteTask_NotReady(t *testing.T) {
	f := newFixture(t, nil)
	a := f.task(t, "upstream")
	b := f.task(t, "downstream")
	f.edge(t, a, b, model.FlowAutomatic)

	_, err := f.orch.ExecuteTask(context.Background(), b)
	require.ErrorIs(t, err, ErrNotReady)
	require.Empty(t, f.delegate.calls)
}

func TestExecuteTask_PassesUpstreamOutputs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.task(t, "gather")
	b := f.task(t, "analyse")
	f.edge(t, a, b, model.FlowAutomatic)
	f.delegate.produce("gather", `{"title":"paper one"}`, `{"title":"paper two"}`)
	f.delegate.produce("analyse", `{"verdict":"ok"}`)

	_, err := f.orch.ExecuteTask(ctx, a)
	require.NoError(t, err)
	outcome, err := f.orch.ExecuteTask(ctx, b)
	require.NoError(t, err)
	require.Equal(t, model.TaskProduced, outcome.Status)

	up := f.delegate.seen["analyse"]
	require.Len(t, up, 1)
	require.Equal(t, a, up[0].Task.ID)
	require.Len(t, up[0].Entities, 2)
	require.Equal(t, OutputRating, up[0].Entities[0].FeedbackRating)
	require.Equal(t, model.EntityJSONData, up[0].Entities[0].Type)
}

func TestExecuteTask_SameTitleOutputsKeptApart(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.task(t, "collect")
	f.delegate.produce("collect",
		`{"title":"Attention","url":"https://a.example/1"}`,
		`{"title":"Attention","url":"https://b.example/2"}`,
		`{"title":"Attention","url":"https://a.example/1"}`)

	outcome, err := f.orch.ExecuteTask(ctx, a)
	require.NoError(t, err)
	require.Len(t, outcome.Entities, 3)
	require.NotEqual(t, outcome.Entities[0], outcome.Entities[1])
	require.Equal(t, outcome.Entities[0], outcome.Entities[2])

	n, err := f.store.CountTaskOutputs(ctx, a, model.EntityJSONData)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestExecuteTask_NoOutputsFails(t *testing.T) {
	f := newFixture(t, nil)
	a := f.task(t, "empty handed")
	outcome, err := f.orch.ExecuteTask(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, model.TaskFailed, outcome.Status)
	require.Equal(t, model.TaskFailed, f.status(t, a))
}

func TestExecuteTask_DelegateErrorMarksFailed(t *testing.T) {
	f := newFixture(t, nil)
	a := f.task(t, "flaky")
	f.delegate.errs["flaky"] = errors.New("model overloaded")

	_, err := f.orch.ExecuteTask(context.Background(), a)
	require.Error(t, err)
	require.Equal(t, model.TaskFailed, f.status(t, a))
}

func TestExecuteTask_CreatesProposedTasks(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.task(t, "scope review")
	f.delegate.results["scope review"] = oracle.ExecutionResult{
		Entities: []json.RawMessage{json.RawMessage(`{"title":"scope"}`)},
		Tasks:    []oracle.ProposedTask{{Ref: "next", Name: "screen abstracts"}},
		Dependencies: []oracle.ProposedDependency{
			{Source: "self", Dependent: "next"},
			{Source: "next", Dependent: "missing"},
		},
	}

	outcome, err := f.orch.ExecuteTask(ctx, a)
	require.NoError(t, err)
	require.Len(t, outcome.NewTasks, 1)

	deps, err := f.store.Dependencies(ctx, outcome.NewTasks[0])
	require.NoError(t, err)
	require.Len(t, deps, 1)
	require.Equal(t, a, deps[0].SourceTaskID)
	require.Equal(t, model.FlowAutomatic, deps[0].DataFlow)

	// Proposed tasks are created, not run.
	require.Equal(t, []string{"scope review"}, f.delegate.calls)
	require.Equal(t, model.TaskCreated, f.status(t, outcome.NewTasks[0]))
}

func TestOutputName(t *testing.T) {
	require.Equal(t, "a title", outputName(json.RawMessage(`{"title":"a title","name":"n"}`)))
	require.Equal(t, "n", outputName(json.RawMessage(`{"name":"n"}`)))
	name := outputName(json.RawMessage(`[1,2,3]`))
	require.Len(t, name, len("output-")+12)
	require.Equal(t, name, outputName(json.RawMessage(`[1,2,3]`)))
}
