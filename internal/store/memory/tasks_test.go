package memory

import (
	"context"
	"testing"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/stretchr/testify/require"
)

func TestTasks_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryProvider()

	_, err := m.CreateTask(ctx, model.TaskInput{ProjectID: 7, Name: "orphan"})
	require.ErrorIs(t, err, model.ErrNotFound)

	project, err := m.CreateProject(ctx, "survey", "literature survey")
	require.NoError(t, err)
	a, err := m.CreateTask(ctx, model.TaskInput{ProjectID: project, Name: "collect"})
	require.NoError(t, err)
	b, err := m.CreateTask(ctx, model.TaskInput{ProjectID: project, Name: "summarise"})
	require.NoError(t, err)

	task, err := m.GetTask(ctx, a)
	require.NoError(t, err)
	require.Equal(t, model.TaskCreated, task.Status)

	require.NoError(t, m.SetTaskStatus(ctx, a, model.TaskProduced))
	require.NoError(t, m.RenameTask(ctx, b, "summarize"))
	task, err = m.GetTask(ctx, b)
	require.NoError(t, err)
	require.Equal(t, "summarize", task.Name)

	tasks, err := m.ListTasks(ctx, project)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, model.TaskProduced, tasks[0].Status)

	require.NoError(t, m.AddDependency(ctx, model.TaskDependency{SourceTaskID: a, DependentTaskID: b, DataFlow: model.FlowAutomatic}))
	require.NoError(t, m.DeleteTask(ctx, a))

	deps, err := m.Dependencies(ctx, b)
	require.NoError(t, err)
	require.Empty(t, deps)
	require.ErrorIs(t, m.DeleteTask(ctx, a), model.ErrNotFound)
}

func TestAddDependency(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryProvider()
	project, _ := m.CreateProject(ctx, "p", "")
	a, _ := m.CreateTask(ctx, model.TaskInput{ProjectID: project, Name: "a"})
	b, _ := m.CreateTask(ctx, model.TaskInput{ProjectID: project, Name: "b"})

	err := m.AddDependency(ctx, model.TaskDependency{SourceTaskID: a, DependentTaskID: b, DataFlow: "sideways"})
	require.ErrorIs(t, err, model.ErrInvalidArgument)
	err = m.AddDependency(ctx, model.TaskDependency{SourceTaskID: a, DependentTaskID: a, DataFlow: model.FlowAutomatic})
	require.ErrorIs(t, err, model.ErrInvalidArgument)
	err = m.AddDependency(ctx, model.TaskDependency{SourceTaskID: a, DependentTaskID: 99, DataFlow: model.FlowAutomatic})
	require.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, m.AddDependency(ctx, model.TaskDependency{SourceTaskID: a, DependentTaskID: b, DataFlow: model.FlowAutomatic, DataSchema: "v1"}))
	require.NoError(t, m.AddDependency(ctx, model.TaskDependency{SourceTaskID: a, DependentTaskID: b, DataFlow: model.FlowGatedByUser, DataSchema: "v2"}))
	require.NoError(t, m.AddDependency(ctx, model.TaskDependency{SourceTaskID: b, DependentTaskID: a, DataFlow: model.FlowRethinking}))

	in, err := m.Dependencies(ctx, b)
	require.NoError(t, err)
	require.Len(t, in, 1)
	require.Equal(t, model.FlowGatedByUser, in[0].DataFlow)
	require.Equal(t, "v2", in[0].DataSchema)

	out, err := m.Dependents(ctx, b)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, a, out[0].DependentTaskID)

	all, err := m.ProjectDependencies(ctx, project)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestTaskEntities(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryProvider()
	project, _ := m.CreateProject(ctx, "p", "")
	task, _ := m.CreateTask(ctx, model.TaskInput{ProjectID: project, Name: "t"})
	low, _ := m.UpsertEntity(ctx, model.EntityInput{Type: model.EntityPaper, Name: "low"})
	high, _ := m.UpsertEntity(ctx, model.EntityInput{Type: model.EntityJSONData, Name: "high"})

	require.NoError(t, m.LinkEntityToTask(ctx, model.TaskEntity{TaskID: task, EntityID: low, FeedbackRating: 1}))
	require.NoError(t, m.LinkEntityToTask(ctx, model.TaskEntity{TaskID: task, EntityID: high, FeedbackRating: 9}))
	require.NoError(t, m.LinkEntityToTask(ctx, model.TaskEntity{TaskID: task, EntityID: low, FeedbackRating: 2}))

	views, err := m.TaskEntities(ctx, task)
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Equal(t, high, views[0].ID)
	require.Equal(t, 2.0, views[1].FeedbackRating)

	n, err := m.CountTaskOutputs(ctx, task, model.EntityJSONData)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	err = m.LinkEntityToTask(ctx, model.TaskEntity{TaskID: task, EntityID: 999})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestQueueAndCriteria(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryProvider()

	first, err := m.AddQueuedTask(ctx, model.QueuedTask{Name: "assess", Scope: "paper"})
	require.NoError(t, err)
	_, err = m.AddQueuedTask(ctx, model.QueuedTask{Name: "assess", Scope: "author"})
	require.NoError(t, err)

	queued, err := m.ListQueuedTasks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	require.Equal(t, first, queued[0].ID)

	require.NoError(t, m.DeleteQueuedTask(ctx, first))
	require.ErrorIs(t, m.DeleteQueuedTask(ctx, first), model.ErrNotFound)

	_, err = m.AddCriterion(ctx, model.Criterion{Name: "novelty", Scope: "paper", Promise: 0.4})
	require.NoError(t, err)
	_, err = m.AddCriterion(ctx, model.Criterion{Name: "rigor", Scope: "paper", Promise: 0.9})
	require.NoError(t, err)

	criteria, err := m.ListCriteria(ctx, "")
	require.NoError(t, err)
	require.Len(t, criteria, 2)
	require.Equal(t, "rigor", criteria[0].Name)

	criteria, err = m.ListCriteria(ctx, "novelty")
	require.NoError(t, err)
	require.Len(t, criteria, 1)
}
