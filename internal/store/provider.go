package store

import (
	"context"

	"github.com/shaibs3/ResearchGraph/internal/model"
)

// EntityStore holds the typed entity/tag/link graph. Every mutation is a
// single transaction.
type EntityStore interface {
	UpsertEntity(ctx context.Context, in model.EntityInput) (int64, error)
	GetEntity(ctx context.Context, id int64) (*model.Entity, error)
	// GetByURL returns the ids of entities with the given url, optionally
	// restricted to one type (empty type matches all).
	GetByURL(ctx context.Context, url string, typ model.EntityType) ([]int64, error)
	SetEntityEmbedding(ctx context.Context, id int64, embedding []float32) error
	AddOrUpdateTag(ctx context.Context, in model.TagInput) (int, error)
	ListTags(ctx context.Context, entityID int64, name string) ([]model.Tag, error)
	Link(ctx context.Context, link model.Link) error
	ListLinks(ctx context.Context, fromID int64) ([]model.Link, error)
	AddParagraph(ctx context.Context, paperID int64, content string, embedding []float32) (int64, error)
	DeleteParagraphs(ctx context.Context, paperID int64) (int, error)
	EntitiesWithSummaries(ctx context.Context, ids []int64) ([]model.EntitySummary, error)
	UntaggedEntities(ctx context.Context, typ model.EntityType, tagName string, limit int) ([]model.Entity, error)
	RankEntities(ctx context.Context, q model.VectorQuery) ([]int64, error)
	RankTags(ctx context.Context, q model.TagQuery) ([]int64, error)
}

// FrontierStore holds the crawl queue, completion ledger and page cache.
type FrontierStore interface {
	// Enqueue inserts url unless already queued and reports whether it did.
	Enqueue(ctx context.Context, url, comment string) (bool, error)
	// PendingBatch returns queue entries with no crawled record in id order.
	// max <= 0 means no limit.
	PendingBatch(ctx context.Context, max int) ([]model.QueueEntry, error)
	// MarkCrawled records completion; it returns false without writing when
	// the path or id is already recorded.
	MarkCrawled(ctx context.Context, id int64, path string) (bool, error)
	Crawled(ctx context.Context) ([]model.CrawledRecord, error)
	// CachePut upserts a page snapshot. A nil extracted payload keeps any
	// stored results only while the digest is unchanged.
	CachePut(ctx context.Context, url, content string, extracted []byte) error
	GetCacheEntry(ctx context.Context, url string) (*model.CacheEntry, error)
}

// TaskStore holds projects, tasks, dependency edges and task/entity links.
type TaskStore interface {
	CreateProject(ctx context.Context, name, description string) (int64, error)
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	CreateTask(ctx context.Context, in model.TaskInput) (int64, error)
	GetTask(ctx context.Context, id int64) (*model.Task, error)
	ListTasks(ctx context.Context, projectID int64) ([]model.Task, error)
	RenameTask(ctx context.Context, id int64, name string) error
	DeleteTask(ctx context.Context, id int64) error
	SetTaskStatus(ctx context.Context, id int64, status model.TaskStatus) error
	AddDependency(ctx context.Context, dep model.TaskDependency) error
	// Dependencies returns the edges pointing into taskID.
	Dependencies(ctx context.Context, taskID int64) ([]model.TaskDependency, error)
	// Dependents returns the edges leaving taskID.
	Dependents(ctx context.Context, taskID int64) ([]model.TaskDependency, error)
	ProjectDependencies(ctx context.Context, projectID int64) ([]model.TaskDependency, error)
	LinkEntityToTask(ctx context.Context, te model.TaskEntity) error
	TaskEntities(ctx context.Context, taskID int64) ([]model.TaskEntityView, error)
	CountTaskOutputs(ctx context.Context, taskID int64, typ model.EntityType) (int, error)
}

// QueueStore holds the generic enrichment queue and assessment criteria.
type QueueStore interface {
	AddQueuedTask(ctx context.Context, t model.QueuedTask) (int64, error)
	ListQueuedTasks(ctx context.Context, limit int) ([]model.QueuedTask, error)
	DeleteQueuedTask(ctx context.Context, id int64) error
	AddCriterion(ctx context.Context, c model.Criterion) (int64, error)
	ListCriteria(ctx context.Context, name string) ([]model.Criterion, error)
}

// GraphProvider is the single relational backing store.
type GraphProvider interface {
	EntityStore
	FrontierStore
	TaskStore
	QueueStore
	Close() error
}
