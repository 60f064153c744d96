package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (p *PostgresProvider) Enqueue(ctx context.Context, url, comment string) (bool, error) {
	if url == "" {
		return false, fmt.Errorf("url is required: %w", model.ErrInvalidArgument)
	}
	return run(ctx, p, "enqueue", func() (bool, error) {
		row := CrawlQueueRow{URL: url, CreateTime: time.Now().UTC(), Comment: comment}
		res := p.gormDB.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "url"}}, DoNothing: true}).
			Create(&row)
		if res.Error != nil {
			return false, res.Error
		}
		return res.RowsAffected == 1, nil
	})
}

func (p *PostgresProvider) PendingBatch(ctx context.Context, max int) ([]model.QueueEntry, error) {
	if max <= 0 {
		max = -1
	}
	return run(ctx, p, "pending_batch", func() ([]model.QueueEntry, error) {
		var rows []CrawlQueueRow
		err := p.gormDB.WithContext(ctx).
			Where("NOT EXISTS (SELECT 1 FROM crawled c WHERE c.id = crawl_queue.id)").
			Order("id").
			Limit(max).
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		out := make([]model.QueueEntry, len(rows))
		for i, r := range rows {
			out[i] = model.QueueEntry{ID: r.ID, URL: r.URL, CreateTime: r.CreateTime, Comment: r.Comment}
		}
		return out, nil
	})
}

func (p *PostgresProvider) MarkCrawled(ctx context.Context, id int64, path string) (bool, error) {
	return run(ctx, p, "mark_crawled", func() (bool, error) {
		inserted := false
		err := p.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var entry CrawlQueueRow
			if err := tx.First(&entry, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("queue entry %d: %w", id, model.ErrNotFound)
				}
				return err
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&CrawledRow{ID: id, Path: path, CrawlTime: time.Now().UTC()})
			if res.Error != nil {
				return res.Error
			}
			inserted = res.RowsAffected == 1
			return nil
		})
		return inserted, err
	})
}

func (p *PostgresProvider) Crawled(ctx context.Context) ([]model.CrawledRecord, error) {
	return run(ctx, p, "crawled", func() ([]model.CrawledRecord, error) {
		var out []model.CrawledRecord
		err := p.gormDB.WithContext(ctx).
			Table("crawled").
			Select("crawled.id, crawled.path, crawled.crawl_time, crawl_queue.url").
			Joins("JOIN crawl_queue ON crawl_queue.id = crawled.id").
			Order("crawled.id").
			Scan(&out).Error
		return out, err
	})
}

// CachePut replaces the snapshot for url. Stored extraction results survive
// only when the content digest is unchanged and no new results are given.
func (p *PostgresProvider) CachePut(ctx context.Context, url, content string, extracted []byte) error {
	if url == "" {
		return fmt.Errorf("url is required: %w", model.ErrInvalidArgument)
	}
	digest := model.ContentDigest(content)
	return p.exec(ctx, "cache_put", func() error {
		return p.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			row := CrawlCacheRow{URL: url, Content: content, Digest: digest, CreatedAt: time.Now().UTC()}
			if extracted != nil {
				row.ExtractedJSON = datatypes.JSON(extracted)
			} else {
				var prev CrawlCacheRow
				err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&prev, "url = ?", url).Error
				switch {
				case err == nil && prev.Digest == digest:
					row.ExtractedJSON = prev.ExtractedJSON
				case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
					return err
				}
			}
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "url"}},
				DoUpdates: clause.AssignmentColumns([]string{"content", "digest", "created_at", "extracted_json"}),
			}).Create(&row).Error
		})
	})
}

func (p *PostgresProvider) GetCacheEntry(ctx context.Context, url string) (*model.CacheEntry, error) {
	return run(ctx, p, "get_cache_entry", func() (*model.CacheEntry, error) {
		var row CrawlCacheRow
		if err := p.gormDB.WithContext(ctx).First(&row, "url = ?", url).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("cache entry %q: %w", url, model.ErrNotFound)
			}
			return nil, err
		}
		entry := &model.CacheEntry{
			URL:       row.URL,
			Content:   row.Content,
			Digest:    row.Digest,
			CreatedAt: row.CreatedAt,
		}
		if len(row.ExtractedJSON) > 0 {
			entry.ExtractedJSON = []byte(row.ExtractedJSON)
		}
		return entry, nil
	})
}
