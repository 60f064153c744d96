package postgres

import (
	"time"

	"gorm.io/datatypes"
)

// CrawlQueueRow is one frontier entry; URL is unique.
type CrawlQueueRow struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	URL        string    `gorm:"uniqueIndex;not null"`
	CreateTime time.Time `gorm:"not null"`
	Comment    string
}

func (CrawlQueueRow) TableName() string {
	return "crawl_queue"
}

// CrawledRow shares its id with the queue entry it completes.
type CrawledRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"`
	Path      string    `gorm:"uniqueIndex;not null"`
	CrawlTime time.Time `gorm:"not null"`
}

func (CrawledRow) TableName() string {
	return "crawled"
}

type CrawlCacheRow struct {
	URL           string `gorm:"primaryKey"`
	Content       string
	Digest        string    `gorm:"index;not null"`
	CreatedAt     time.Time `gorm:"not null"`
	ExtractedJSON datatypes.JSON
}

func (CrawlCacheRow) TableName() string {
	return "crawl_cache"
}
