package taskgraph

import (
	"context"
	"testing"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateTask_ReusesSimilarName(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	existing := f.task(t, "Collect transformer papers")

	id, created, err := f.orch.GetOrCreateTask(ctx, ResolveRequest{ProjectID: f.project, Summary: "collect transformer papers"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, existing, id)
}

func TestGetOrCreateTask_CreatesWhenDissimilar(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	existing := f.task(t, "collect transformer papers")

	id, created, err := f.orch.GetOrCreateTask(ctx, ResolveRequest{
		ProjectID:    f.project,
		Summary:      "benchmark quantum annealers",
		OutputSchema: `{"type":"object"}`,
	})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, existing, id)

	task, err := f.store.GetTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "benchmark quantum annealers", task.Description)
	require.NotEmpty(t, task.DescriptionEmbedding)
}

func TestGetOrCreateTask_SelectedWins(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_ = f.task(t, "identical summary")
	selected := f.task(t, "something else entirely")

	id, created, err := f.orch.GetOrCreateTask(ctx, ResolveRequest{
		ProjectID: f.project, Summary: "identical summary", SelectedID: &selected,
	})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, selected, id)
}

func TestGetOrCreateTask_SelectedFromOtherProjectIgnored(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	other, err := f.orch.CreateProject(ctx, "other", "")
	require.NoError(t, err)
	foreign, err := f.orch.CreateTask(ctx, model.TaskInput{ProjectID: other, Name: "foreign"})
	require.NoError(t, err)

	id, created, err := f.orch.GetOrCreateTask(ctx, ResolveRequest{
		ProjectID: f.project, Summary: "local task", SelectedID: &foreign,
	})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, foreign, id)
}

func TestGetOrCreateTask_ParentEdge(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	parent := f.task(t, "write literature review")

	child, created, err := f.orch.GetOrCreateTask(ctx, ResolveRequest{
		ProjectID: f.project, Summary: "search arxiv", ParentID: &parent,
	})
	require.NoError(t, err)
	require.True(t, created)

	deps, err := f.store.Dependencies(ctx, child)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	require.Equal(t, parent, deps[0].SourceTaskID)
	require.Equal(t, model.FlowParentSubtask, deps[0].DataFlow)
	require.True(t, f.ready(t, child))
}

func TestGetOrCreateTask_Validation(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.orch.GetOrCreateTask(context.Background(), ResolveRequest{ProjectID: f.project})
	require.ErrorIs(t, err, model.ErrInvalidArgument)

	_, _, err = f.orch.GetOrCreateTask(context.Background(), ResolveRequest{ProjectID: 404, Summary: "x"})
	require.ErrorIs(t, err, model.ErrNotFound)
}
