package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/shaibs3/ResearchGraph/internal/model"
)

func (m *InMemoryProvider) AddQueuedTask(ctx context.Context, t model.QueuedTask) (int64, error) {
	if t.Name == "" {
		return 0, fmt.Errorf("queued task name is required: %w", model.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextQueuedID
	m.nextQueuedID++
	m.queued = append(m.queued, t)
	return t.ID, nil
}

func (m *InMemoryProvider) ListQueuedTasks(ctx context.Context, limit int) ([]model.QueuedTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.queued)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]model.QueuedTask(nil), m.queued[:n]...), nil
}

func (m *InMemoryProvider) DeleteQueuedTask(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.queued {
		if t.ID == id {
			m.queued = append(m.queued[:i], m.queued[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("queued task %d: %w", id, model.ErrNotFound)
}

func (m *InMemoryProvider) AddCriterion(ctx context.Context, c model.Criterion) (int64, error) {
	if c.Name == "" || c.Scope == "" {
		return 0, fmt.Errorf("criterion name and scope are required: %w", model.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextCriterionID
	m.nextCriterionID++
	m.criteria = append(m.criteria, c)
	return c.ID, nil
}

func (m *InMemoryProvider) ListCriteria(ctx context.Context, name string) ([]model.Criterion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Criterion
	for _, c := range m.criteria {
		if name == "" || c.Name == name {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Promise > out[j].Promise })
	return out, nil
}
