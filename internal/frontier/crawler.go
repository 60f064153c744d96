package frontier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type CrawlerConfig struct {
	DownloadsDir string
	BatchSize    int
	Concurrency  int
}

// CrawlHook runs after an entry has been marked crawled.
type CrawlHook func(ctx context.Context, entry model.QueueEntry, path string) error

// Crawler drains the frontier: it fetches a batch concurrently, joins, then
// records completions one by one.
type Crawler struct {
	frontier *Frontier
	fetcher  *Fetcher
	cfg      CrawlerConfig
	logger   *zap.Logger
	onCrawl  CrawlHook
}

func NewCrawler(f *Frontier, fetcher *Fetcher, cfg CrawlerConfig, logger *zap.Logger) *Crawler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.DownloadsDir == "" {
		cfg.DownloadsDir = "downloads"
	}
	return &Crawler{
		frontier: f,
		fetcher:  fetcher,
		cfg:      cfg,
		logger:   logger.Named("crawler"),
	}
}

// OnCrawled registers a hook invoked for every newly recorded completion.
func (c *Crawler) OnCrawled(hook CrawlHook) {
	c.onCrawl = hook
}

// DrainReport summarises one Drain pass.
type DrainReport struct {
	Attempted int `json:"attempted"`
	Crawled   int `json:"crawled"`
	Failed    int `json:"failed"`
}

type fetchOutcome struct {
	path string
	err  error
}

// Drain processes one batch. Failed entries stay queued for the next pass.
func (c *Crawler) Drain(ctx context.Context) (DrainReport, error) {
	batch, err := c.frontier.DequeueBatch(ctx, c.cfg.BatchSize)
	if err != nil {
		return DrainReport{}, fmt.Errorf("failed to read frontier: %w", err)
	}
	report := DrainReport{Attempted: len(batch)}
	if len(batch) == 0 {
		return report, nil
	}
	if err := os.MkdirAll(c.cfg.DownloadsDir, 0o755); err != nil {
		return report, fmt.Errorf("failed to create downloads dir: %w", err)
	}

	outcomes := make([]fetchOutcome, len(batch))
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, entry := range batch {
		g.Go(func() error {
			p, err := c.retrieve(ctx, entry)
			outcomes[i] = fetchOutcome{path: p, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, entry := range batch {
		out := outcomes[i]
		if out.err != nil {
			report.Failed++
			recordFetchFailure(ctx)
			c.logger.Warn("fetch failed, entry left queued",
				zap.Int64("id", entry.ID), zap.String("url", entry.URL), zap.Error(out.err))
			continue
		}
		ok, err := c.frontier.MarkCrawled(ctx, entry.ID, out.path)
		if err != nil {
			report.Failed++
			c.logger.Error("failed to mark crawled", zap.Int64("id", entry.ID), zap.Error(err))
			continue
		}
		if !ok {
			c.logger.Info("path already recorded", zap.Int64("id", entry.ID), zap.String("path", out.path))
			continue
		}
		report.Crawled++
		recordCrawled(ctx)
		if c.onCrawl != nil {
			if err := c.onCrawl(ctx, entry, out.path); err != nil {
				c.logger.Warn("crawl hook failed", zap.Int64("id", entry.ID), zap.Error(err))
			}
		}
	}

	c.logger.Info("frontier drained",
		zap.Int("attempted", report.Attempted),
		zap.Int("crawled", report.Crawled),
		zap.Int("failed", report.Failed))
	return report, nil
}

// retrieve returns the local path holding entry's content, downloading it
// when needed.
func (c *Crawler) retrieve(ctx context.Context, entry model.QueueEntry) (string, error) {
	u, err := url.Parse(entry.URL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "file" {
		local := filepath.FromSlash(u.Path)
		if _, err := os.Stat(local); err != nil {
			return "", err
		}
		return local, nil
	}

	dest := filepath.Join(c.cfg.DownloadsDir, strconv.FormatInt(entry.ID, 10)+extension(u))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if fresh, err := c.frontier.IsRecentlyCached(ctx, entry.URL); err == nil && fresh {
		if cached, err := c.frontier.store.GetCacheEntry(ctx, entry.URL); err == nil {
			return dest, writeFile(dest, []byte(cached.Content))
		}
	}

	res, err := c.fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		return "", err
	}
	if res.Truncated {
		c.logger.Warn("response truncated", zap.String("url", entry.URL))
	}
	if err := writeFile(dest, res.Body); err != nil {
		return "", err
	}
	if isText(res.ContentType, res.Body) {
		if err := c.frontier.CachePut(ctx, entry.URL, string(res.Body)); err != nil {
			c.logger.Warn("failed to cache page", zap.String("url", entry.URL), zap.Error(err))
		}
	}
	return dest, nil
}

func extension(u *url.URL) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || len(ext) > 6 {
		return ".html"
	}
	return ext
}

func isText(contentType string, body []byte) bool {
	switch {
	case strings.HasPrefix(contentType, "text/"),
		strings.Contains(contentType, "json"),
		strings.Contains(contentType, "xml"):
		return true
	case contentType == "":
		return utf8.Valid(body)
	}
	return false
}

// writeFile writes through a temp file so a partial download never sits at dest.
func writeFile(dest string, data []byte) error {
	tmp := dest + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
