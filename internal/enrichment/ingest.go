package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/shaibs3/ResearchGraph/internal/frontier"
	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/oracle"
	"github.com/shaibs3/ResearchGraph/internal/store"
	"go.uber.org/zap"
)

// SummaryTag is the tag holding an entity's summary.
const SummaryTag = "summary"

// Ingest turns a crawled document into a paper entity with its summary tag,
// author links and paragraph children. Scope on the queued task is the
// document URL and Description its local path.
type Ingest struct {
	entities  store.EntityStore
	cache     *frontier.PageCache
	extractor oracle.Extractor
	embedder  oracle.Embedder
	logger    *zap.Logger
}

func NewIngest(entities store.EntityStore, cache *frontier.PageCache, extractor oracle.Extractor, embedder oracle.Embedder, logger *zap.Logger) *Ingest {
	return &Ingest{
		entities:  entities,
		cache:     cache,
		extractor: extractor,
		embedder:  embedder,
		logger:    logger.Named("ingest"),
	}
}

func (i *Ingest) Name() string { return "ingest" }

// Hook queues an ingest task for every newly crawled entry.
func Hook(queue store.QueueStore) frontier.CrawlHook {
	return func(ctx context.Context, entry model.QueueEntry, path string) error {
		_, err := queue.AddQueuedTask(ctx, model.QueuedTask{
			Name:        "ingest",
			Scope:       entry.URL,
			Description: path,
		})
		return err
	}
}

func (i *Ingest) Run(ctx context.Context, task model.QueuedTask) error {
	docURL := task.Scope
	if docURL == "" {
		return fmt.Errorf("ingest task %d has no url: %w", task.ID, model.ErrInvalidArgument)
	}
	content, err := readDocument(docURL, task.Description)
	if err != nil {
		return err
	}
	if !utf8.ValidString(content) {
		i.logger.Info("skipping non-text document", zap.String("url", docURL))
		return nil
	}

	raw, err := i.cache.Consult(ctx, docURL, content, func(ctx context.Context, content string) (json.RawMessage, error) {
		ex, err := i.extractor.Extract(ctx, docURL, content)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ex)
	}, false)
	if err != nil {
		return err
	}
	var ex oracle.Extraction
	if err := json.Unmarshal(raw, &ex); err != nil {
		return fmt.Errorf("cached extraction for %s is unreadable: %w", docURL, err)
	}
	return i.persist(ctx, docURL, ex)
}

func (i *Ingest) persist(ctx context.Context, docURL string, ex oracle.Extraction) error {
	title := strings.TrimSpace(ex.Title)
	if title == "" {
		title = docURL
	}
	paperVec, err := i.embedder.Embed(ctx, title+"\n"+ex.Summary)
	if err != nil {
		return err
	}
	paperID, err := i.entities.UpsertEntity(ctx, model.EntityInput{
		Type:      model.EntityPaper,
		Name:      title,
		URL:       docURL,
		Detail:    ex.Summary,
		Embedding: paperVec,
	})
	if err != nil {
		return err
	}

	if ex.Summary != "" {
		summaryVec, err := i.embedder.Embed(ctx, ex.Summary)
		if err != nil {
			return err
		}
		if _, err := i.entities.AddOrUpdateTag(ctx, model.TagInput{
			EntityID: paperID, Name: SummaryTag, Value: ex.Summary, Embedding: summaryVec,
		}); err != nil {
			return err
		}
	}

	for _, name := range ex.Authors {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		authorID, err := i.entities.UpsertEntity(ctx, model.EntityInput{Type: model.EntityAuthor, Name: name})
		if err != nil {
			return err
		}
		if err := i.entities.Link(ctx, model.Link{FromID: paperID, ToID: authorID, Type: model.LinkAuthor}); err != nil {
			return err
		}
	}

	if _, err := i.entities.DeleteParagraphs(ctx, paperID); err != nil {
		return err
	}
	for _, p := range ex.Paragraphs {
		vec, err := i.embedder.Embed(ctx, p)
		if err != nil {
			return err
		}
		if _, err := i.entities.AddParagraph(ctx, paperID, p, vec); err != nil {
			return err
		}
	}
	i.logger.Info("document ingested",
		zap.String("url", docURL),
		zap.Int64("paper_id", paperID),
		zap.Int("authors", len(ex.Authors)),
		zap.Int("paragraphs", len(ex.Paragraphs)))
	return nil
}

// readDocument loads the local copy at path, falling back to the path of a
// file:// URL.
func readDocument(docURL, path string) (string, error) {
	if path == "" {
		u, err := url.Parse(docURL)
		if err != nil || u.Scheme != "file" {
			return "", fmt.Errorf("no local copy of %s: %w", docURL, model.ErrInvalidArgument)
		}
		path = filepath.FromSlash(u.Path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
