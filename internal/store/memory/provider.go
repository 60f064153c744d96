package memory

import (
	"sync"
	"time"

	"github.com/shaibs3/ResearchGraph/internal/model"
)

// InMemoryProvider is a map-backed GraphProvider. A single lock serialises
// every mutation, which gives the same all-or-nothing visibility as one
// database transaction per call.
type InMemoryProvider struct {
	mu  sync.RWMutex
	now func() time.Time

	entities     map[int64]*model.Entity
	entityOrder  []int64
	tags         map[int64][]model.Tag
	links        []model.Link
	nextEntityID int64

	projects      map[int64]*model.Project
	tasks         map[int64]*model.Task
	taskOrder     []int64
	deps          []model.TaskDependency
	taskEntities  map[int64][]model.TaskEntity
	nextProjectID int64
	nextTaskID    int64

	queue        []model.QueueEntry
	crawled      map[int64]model.CrawledRecord
	crawledPaths map[string]int64
	cache        map[string]model.CacheEntry
	nextQueueID  int64

	queued          []model.QueuedTask
	criteria        []model.Criterion
	nextQueuedID    int64
	nextCriterionID int64
}

// Option configures an InMemoryProvider.
type Option func(*InMemoryProvider)

// WithClock replaces time.Now, mostly for recency tests.
func WithClock(now func() time.Time) Option {
	return func(m *InMemoryProvider) {
		m.now = now
	}
}

func NewInMemoryProvider(opts ...Option) *InMemoryProvider {
	m := &InMemoryProvider{
		now:             time.Now,
		entities:        make(map[int64]*model.Entity),
		tags:            make(map[int64][]model.Tag),
		projects:        make(map[int64]*model.Project),
		tasks:           make(map[int64]*model.Task),
		taskEntities:    make(map[int64][]model.TaskEntity),
		crawled:         make(map[int64]model.CrawledRecord),
		crawledPaths:    make(map[string]int64),
		cache:           make(map[string]model.CacheEntry),
		nextEntityID:    1,
		nextProjectID:   1,
		nextTaskID:      1,
		nextQueueID:     1,
		nextQueuedID:    1,
		nextCriterionID: 1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *InMemoryProvider) Close() error {
	return nil
}

func cloneVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	return append([]float32(nil), v...)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
