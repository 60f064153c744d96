package frontier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/store"
	"go.uber.org/zap"
)

// DefaultRecencyTTL is how long a cached page counts as fresh.
const DefaultRecencyTTL = time.Hour

// Frontier is the crawl queue and content cache facade over a FrontierStore.
type Frontier struct {
	store  store.FrontierStore
	logger *zap.Logger
	now    func() time.Time
	ttl    time.Duration
}

type Option func(*Frontier)

func WithClock(now func() time.Time) Option {
	return func(f *Frontier) {
		f.now = now
	}
}

func WithRecencyTTL(ttl time.Duration) Option {
	return func(f *Frontier) {
		f.ttl = ttl
	}
}

func New(frontierStore store.FrontierStore, logger *zap.Logger, opts ...Option) *Frontier {
	f := &Frontier{
		store:  frontierStore,
		logger: logger.Named("frontier"),
		now:    time.Now,
		ttl:    DefaultRecencyTTL,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Enqueue adds url unless it is already queued and reports whether it did.
func (f *Frontier) Enqueue(ctx context.Context, rawURL, comment string) (bool, error) {
	inserted, err := f.store.Enqueue(ctx, rawURL, comment)
	if err != nil {
		return false, err
	}
	if inserted {
		recordEnqueued(ctx)
		f.logger.Debug("url enqueued", zap.String("url", rawURL))
	}
	return inserted, nil
}

// EnqueueMany enqueues every url and returns how many were new.
func (f *Frontier) EnqueueMany(ctx context.Context, urls []string, comment string) (int, error) {
	count := 0
	for _, u := range urls {
		inserted, err := f.Enqueue(ctx, u, comment)
		if err != nil {
			return count, fmt.Errorf("enqueue %q: %w", u, err)
		}
		if inserted {
			count++
		}
	}
	return count, nil
}

// EnqueueDirectory enqueues every regular file in dir as a file:// url with
// the file name as comment.
func (f *Frontier) EnqueueDirectory(ctx context.Context, dir string) (int, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory %s: %w", abs, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	count := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(abs, e.Name()))}
		inserted, err := f.Enqueue(ctx, u.String(), e.Name())
		if err != nil {
			return count, err
		}
		if inserted {
			count++
		}
	}
	f.logger.Info("directory enqueued", zap.String("dir", abs), zap.Int("inserted", count))
	return count, nil
}

// DequeueBatch returns up to max uncrawled entries in FIFO order without
// removing them.
func (f *Frontier) DequeueBatch(ctx context.Context, max int) ([]model.QueueEntry, error) {
	return f.store.PendingBatch(ctx, max)
}

// MarkCrawled records completion; false means the path was already recorded.
func (f *Frontier) MarkCrawled(ctx context.Context, id int64, path string) (bool, error) {
	return f.store.MarkCrawled(ctx, id, path)
}

func (f *Frontier) Crawled(ctx context.Context) ([]model.CrawledRecord, error) {
	return f.store.Crawled(ctx)
}

func (f *Frontier) CachePut(ctx context.Context, rawURL, content string) error {
	return f.store.CachePut(ctx, rawURL, content, nil)
}

func (f *Frontier) CachePutWithResults(ctx context.Context, rawURL, content string, extracted json.RawMessage) error {
	if len(extracted) == 0 {
		return fmt.Errorf("extracted results are required: %w", model.ErrInvalidArgument)
	}
	return f.store.CachePut(ctx, rawURL, content, extracted)
}

func (f *Frontier) cacheEntry(ctx context.Context, rawURL string) (*model.CacheEntry, error) {
	entry, err := f.store.GetCacheEntry(ctx, rawURL)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	return entry, err
}

// IsFullyCached is true iff the stored digest for url matches content and
// extraction results are present.
func (f *Frontier) IsFullyCached(ctx context.Context, rawURL, content string) (bool, error) {
	_, ok, err := f.CachedOutput(ctx, rawURL, content)
	return ok, err
}

// CachedOutput returns the stored extraction results when the page is fully
// cached for content.
func (f *Frontier) CachedOutput(ctx context.Context, rawURL, content string) (json.RawMessage, bool, error) {
	entry, err := f.cacheEntry(ctx, rawURL)
	if err != nil || entry == nil {
		return nil, false, err
	}
	if entry.Digest != model.ContentDigest(content) || len(entry.ExtractedJSON) == 0 {
		return nil, false, nil
	}
	return entry.ExtractedJSON, true, nil
}

// IsRecentlyCached reports whether url was cached within the recency TTL,
// whatever its content.
func (f *Frontier) IsRecentlyCached(ctx context.Context, rawURL string) (bool, error) {
	entry, err := f.cacheEntry(ctx, rawURL)
	if err != nil || entry == nil {
		return false, err
	}
	return f.now().Sub(entry.CreatedAt) < f.ttl, nil
}
