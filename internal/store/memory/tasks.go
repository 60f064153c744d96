package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/shaibs3/ResearchGraph/internal/model"
)

func (m *InMemoryProvider) CreateProject(ctx context.Context, name, description string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("project name is required: %w", model.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextProjectID
	m.nextProjectID++
	m.projects[id] = &model.Project{ID: id, Name: name, Description: description, CreatedAt: m.now()}
	return id, nil
}

func (m *InMemoryProvider) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %d: %w", id, model.ErrNotFound)
	}
	out := *p
	return &out, nil
}

func (m *InMemoryProvider) CreateTask(ctx context.Context, in model.TaskInput) (int64, error) {
	if in.Name == "" {
		return 0, fmt.Errorf("task name is required: %w", model.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[in.ProjectID]; !ok {
		return 0, fmt.Errorf("project %d: %w", in.ProjectID, model.ErrNotFound)
	}
	id := m.nextTaskID
	m.nextTaskID++
	m.tasks[id] = &model.Task{
		ID:                   id,
		ProjectID:            in.ProjectID,
		Name:                 in.Name,
		Description:          in.Description,
		OutputSchema:         in.OutputSchema,
		DescriptionEmbedding: cloneVector(in.DescriptionEmbedding),
		Context:              cloneBytes(in.Context),
		Status:               model.TaskCreated,
		CreatedAt:            m.now(),
	}
	m.taskOrder = append(m.taskOrder, id)
	return id, nil
}

func copyTask(t *model.Task) model.Task {
	out := *t
	out.DescriptionEmbedding = cloneVector(t.DescriptionEmbedding)
	out.Context = cloneBytes(t.Context)
	return out
}

func (m *InMemoryProvider) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}
	out := copyTask(t)
	return &out, nil
}

func (m *InMemoryProvider) ListTasks(ctx context.Context, projectID int64) ([]model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Task
	for _, id := range m.taskOrder {
		if t := m.tasks[id]; t.ProjectID == projectID {
			out = append(out, copyTask(t))
		}
	}
	return out, nil
}

func (m *InMemoryProvider) RenameTask(ctx context.Context, id int64, name string) error {
	if name == "" {
		return fmt.Errorf("task name is required: %w", model.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}
	t.Name = name
	return nil
}

func (m *InMemoryProvider) DeleteTask(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}
	delete(m.tasks, id)
	delete(m.taskEntities, id)
	order := m.taskOrder[:0]
	for _, tid := range m.taskOrder {
		if tid != id {
			order = append(order, tid)
		}
	}
	m.taskOrder = order
	deps := m.deps[:0]
	for _, d := range m.deps {
		if d.SourceTaskID != id && d.DependentTaskID != id {
			deps = append(deps, d)
		}
	}
	m.deps = deps
	return nil
}

func (m *InMemoryProvider) SetTaskStatus(ctx context.Context, id int64, status model.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}
	t.Status = status
	return nil
}

func (m *InMemoryProvider) AddDependency(ctx context.Context, dep model.TaskDependency) error {
	if !dep.DataFlow.IsValid() {
		return fmt.Errorf("data flow %q: %w", dep.DataFlow, model.ErrInvalidArgument)
	}
	if dep.SourceTaskID == dep.DependentTaskID {
		return fmt.Errorf("task %d cannot depend on itself: %w", dep.SourceTaskID, model.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range []int64{dep.SourceTaskID, dep.DependentTaskID} {
		if _, ok := m.tasks[id]; !ok {
			return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
		}
	}
	for i, d := range m.deps {
		if d.SourceTaskID == dep.SourceTaskID && d.DependentTaskID == dep.DependentTaskID {
			m.deps[i] = dep
			return nil
		}
	}
	m.deps = append(m.deps, dep)
	return nil
}

func (m *InMemoryProvider) collectDeps(keep func(model.TaskDependency) bool, less func(a, b model.TaskDependency) bool) []model.TaskDependency {
	var out []model.TaskDependency
	for _, d := range m.deps {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (m *InMemoryProvider) Dependencies(ctx context.Context, taskID int64) ([]model.TaskDependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectDeps(
		func(d model.TaskDependency) bool { return d.DependentTaskID == taskID },
		func(a, b model.TaskDependency) bool { return a.SourceTaskID < b.SourceTaskID },
	), nil
}

func (m *InMemoryProvider) Dependents(ctx context.Context, taskID int64) ([]model.TaskDependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectDeps(
		func(d model.TaskDependency) bool { return d.SourceTaskID == taskID },
		func(a, b model.TaskDependency) bool { return a.DependentTaskID < b.DependentTaskID },
	), nil
}

func (m *InMemoryProvider) ProjectDependencies(ctx context.Context, projectID int64) ([]model.TaskDependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inProject := func(id int64) bool {
		t, ok := m.tasks[id]
		return ok && t.ProjectID == projectID
	}
	return m.collectDeps(
		func(d model.TaskDependency) bool { return inProject(d.SourceTaskID) && inProject(d.DependentTaskID) },
		func(a, b model.TaskDependency) bool {
			if a.SourceTaskID != b.SourceTaskID {
				return a.SourceTaskID < b.SourceTaskID
			}
			return a.DependentTaskID < b.DependentTaskID
		},
	), nil
}

func (m *InMemoryProvider) LinkEntityToTask(ctx context.Context, te model.TaskEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[te.TaskID]; !ok {
		return fmt.Errorf("task %d: %w", te.TaskID, model.ErrNotFound)
	}
	if _, ok := m.entities[te.EntityID]; !ok {
		return fmt.Errorf("entity %d: %w", te.EntityID, model.ErrNotFound)
	}
	links := m.taskEntities[te.TaskID]
	for i, existing := range links {
		if existing.EntityID == te.EntityID {
			links[i].FeedbackRating = te.FeedbackRating
			return nil
		}
	}
	m.taskEntities[te.TaskID] = append(links, te)
	return nil
}

func (m *InMemoryProvider) TaskEntities(ctx context.Context, taskID int64) ([]model.TaskEntityView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.TaskEntityView
	for _, te := range m.taskEntities[taskID] {
		e, ok := m.entities[te.EntityID]
		if !ok {
			continue
		}
		out = append(out, model.TaskEntityView{Entity: copyEntity(e), FeedbackRating: te.FeedbackRating})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FeedbackRating != out[j].FeedbackRating {
			return out[i].FeedbackRating > out[j].FeedbackRating
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *InMemoryProvider) CountTaskOutputs(ctx context.Context, taskID int64, typ model.EntityType) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, te := range m.taskEntities[taskID] {
		if e, ok := m.entities[te.EntityID]; ok && (typ == "" || e.Type == typ) {
			count++
		}
	}
	return count, nil
}
