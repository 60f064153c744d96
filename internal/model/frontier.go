package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// QueueEntry is a pending frontier item.
type QueueEntry struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	CreateTime time.Time `json:"create_time"`
	Comment    string    `json:"comment,omitempty"`
}

// CrawledRecord marks a queue entry as done; ID equals the queue id.
type CrawledRecord struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	CrawlTime time.Time `json:"crawl_time"`
	URL       string    `json:"url,omitempty"`
}

// CacheEntry is a content-addressed page snapshot keyed by URL.
type CacheEntry struct {
	URL           string          `json:"url"`
	Content       string          `json:"content"`
	Digest        string          `json:"digest"`
	CreatedAt     time.Time       `json:"created_at"`
	ExtractedJSON json.RawMessage `json:"extracted_json,omitempty"`
}

// ContentDigest returns the hex SHA-256 of content.
func ContentDigest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
