package frontier

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Extract turns page content into structured results.
type Extract func(ctx context.Context, content string) (json.RawMessage, error)

// PageCache memoises extraction results per (url, content digest).
type PageCache struct {
	frontier *Frontier
	logger   *zap.Logger
}

func NewPageCache(f *Frontier, logger *zap.Logger) *PageCache {
	return &PageCache{frontier: f, logger: logger.Named("page_cache")}
}

// Consult returns cached results when the page is fully cached for content;
// otherwise, or when force is set, it runs extract and stores the output.
func (p *PageCache) Consult(ctx context.Context, url, content string, extract Extract, force bool) (json.RawMessage, error) {
	if !force {
		out, ok, err := p.frontier.CachedOutput(ctx, url, content)
		if err != nil {
			return nil, err
		}
		if ok {
			p.logger.Debug("cache hit", zap.String("url", url))
			return out, nil
		}
	}

	out, err := extract(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", url, err)
	}
	if len(out) == 0 {
		out = json.RawMessage("null")
	}
	if err := p.frontier.CachePutWithResults(ctx, url, content, out); err != nil {
		return nil, err
	}
	return out, nil
}
