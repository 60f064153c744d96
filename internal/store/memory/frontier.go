package memory

import (
	"context"
	"fmt"

	"github.com/shaibs3/ResearchGraph/internal/model"
)

func (m *InMemoryProvider) Enqueue(ctx context.Context, url, comment string) (bool, error) {
	if url == "" {
		return false, fmt.Errorf("url is required: %w", model.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.queue {
		if q.URL == url {
			return false, nil
		}
	}
	m.queue = append(m.queue, model.QueueEntry{
		ID:         m.nextQueueID,
		URL:        url,
		CreateTime: m.now(),
		Comment:    comment,
	})
	m.nextQueueID++
	return true, nil
}

func (m *InMemoryProvider) PendingBatch(ctx context.Context, max int) ([]model.QueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.QueueEntry
	for _, q := range m.queue {
		if _, done := m.crawled[q.ID]; done {
			continue
		}
		out = append(out, q)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, nil
}

func (m *InMemoryProvider) MarkCrawled(ctx context.Context, id int64, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.crawledPaths[path]; ok {
		return false, nil
	}
	if _, ok := m.crawled[id]; ok {
		return false, nil
	}
	var url string
	found := false
	for _, q := range m.queue {
		if q.ID == id {
			url, found = q.URL, true
			break
		}
	}
	if !found {
		return false, fmt.Errorf("queue entry %d: %w", id, model.ErrNotFound)
	}
	m.crawled[id] = model.CrawledRecord{ID: id, Path: path, CrawlTime: m.now(), URL: url}
	m.crawledPaths[path] = id
	return true, nil
}

func (m *InMemoryProvider) Crawled(ctx context.Context) ([]model.CrawledRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.CrawledRecord
	for _, q := range m.queue {
		if rec, ok := m.crawled[q.ID]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *InMemoryProvider) CachePut(ctx context.Context, url, content string, extracted []byte) error {
	if url == "" {
		return fmt.Errorf("url is required: %w", model.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	digest := model.ContentDigest(content)
	entry := model.CacheEntry{URL: url, Content: content, Digest: digest, CreatedAt: m.now()}
	switch prev, ok := m.cache[url]; {
	case extracted != nil:
		entry.ExtractedJSON = cloneBytes(extracted)
	case ok && prev.Digest == digest:
		entry.ExtractedJSON = prev.ExtractedJSON
	}
	m.cache[url] = entry
	return nil
}

func (m *InMemoryProvider) GetCacheEntry(ctx context.Context, url string) (*model.CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.cache[url]
	if !ok {
		return nil, fmt.Errorf("cache entry %q: %w", url, model.ErrNotFound)
	}
	entry.ExtractedJSON = cloneBytes(entry.ExtractedJSON)
	return &entry, nil
}
