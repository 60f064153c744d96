package search

import (
	"context"
	"fmt"
	"math"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/oracle"
	"github.com/shaibs3/ResearchGraph/internal/store"
	"go.uber.org/zap"
)

// Query ranks by Vector when given, otherwise by the embedding of Text.
// A non-empty TagName ranks entities by their tags of that name instead and
// cannot be combined with EntityType or Keywords.
type Query struct {
	Text       string
	Vector     []float32
	K          int
	EntityType model.EntityType
	Keywords   []string
	TagName    string
}

type Searcher struct {
	store    store.EntityStore
	embedder oracle.Embedder
	logger   *zap.Logger
}

// NewSearcher expects an embedder that degrades instead of failing, such as
// oracle.SafeEmbedder.
func NewSearcher(entities store.EntityStore, embedder oracle.Embedder, logger *zap.Logger) *Searcher {
	return &Searcher{
		store:    entities,
		embedder: embedder,
		logger:   logger.Named("search"),
	}
}

func (s *Searcher) Rank(ctx context.Context, q Query) ([]int64, error) {
	if q.TagName != "" && (q.EntityType != "" || len(q.Keywords) > 0) {
		return nil, fmt.Errorf("tag search does not take type or keyword filters: %w", model.ErrInvalidArgument)
	}
	vec := q.Vector
	if len(vec) == 0 {
		if q.Text == "" {
			return nil, fmt.Errorf("query text or vector is required: %w", model.ErrInvalidArgument)
		}
		var err error
		vec, err = s.embedder.Embed(ctx, q.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
	}

	if q.TagName != "" {
		ids, err := s.store.RankTags(ctx, model.TagQuery{Vector: vec, K: q.K, TagName: q.TagName})
		if err != nil {
			return nil, err
		}
		s.logger.Debug("ranked tags", zap.String("tag", q.TagName), zap.Int("results", len(ids)))
		return ids, nil
	}

	ids, err := s.store.RankEntities(ctx, model.VectorQuery{
		Vector:     vec,
		K:          q.K,
		EntityType: q.EntityType,
		Keywords:   q.Keywords,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("ranked entities",
		zap.String("type", q.EntityType.String()),
		zap.Strings("keywords", q.Keywords),
		zap.Int("results", len(ids)),
	)
	return ids, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
