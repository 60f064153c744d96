package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/oracle"
	"github.com/shaibs3/ResearchGraph/internal/store/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const dim = 32

type brokenEmbedder struct{}

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding service down")
}

func seed(t *testing.T, m *memory.InMemoryProvider, emb oracle.Embedder, typ model.EntityType, name, detail string) int64 {
	t.Helper()
	vec, err := emb.Embed(context.Background(), name)
	require.NoError(t, err)
	id, err := m.UpsertEntity(context.Background(), model.EntityInput{Type: typ, Name: name, Detail: detail, Embedding: vec})
	require.NoError(t, err)
	return id
}

func TestRank_ByText(t *testing.T) {
	m := memory.NewInMemoryProvider()
	emb := oracle.NewHashEmbedder(dim)
	exact := seed(t, m, emb, model.EntityPaper, "retrieval augmented generation", "rag")
	other := seed(t, m, emb, model.EntityPaper, "protein folding", "biology")

	s := NewSearcher(m, emb, zap.NewNop())
	ids, err := s.Rank(context.Background(), Query{Text: "retrieval augmented generation", K: 2})
	require.NoError(t, err)
	require.Equal(t, []int64{exact, other}, ids)
}

func TestRank_KeywordsAreConjunctive(t *testing.T) {
	m := memory.NewInMemoryProvider()
	emb := oracle.NewHashEmbedder(dim)
	_ = seed(t, m, emb, model.EntityPaper, "a", "graph databases at scale")
	both := seed(t, m, emb, model.EntityPaper, "b", "graph neural networks at scale")

	s := NewSearcher(m, emb, zap.NewNop())
	ids, err := s.Rank(context.Background(), Query{Text: "graph", Keywords: []string{"graph", "neural"}})
	require.NoError(t, err)
	require.Equal(t, []int64{both}, ids)
}

func TestRank_EmbeddingFailureDegrades(t *testing.T) {
	m := memory.NewInMemoryProvider()
	emb := oracle.NewHashEmbedder(dim)
	first := seed(t, m, emb, model.EntityPaper, "one", "")
	second := seed(t, m, emb, model.EntityPaper, "two", "")

	safe := oracle.NewSafeEmbedder(brokenEmbedder{}, dim, time.Second, zap.NewNop())
	s := NewSearcher(m, safe, zap.NewNop())

	ids, err := s.Rank(context.Background(), Query{Text: "anything"})
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{first, second}, ids)

	again, err := s.Rank(context.Background(), Query{Text: "something else"})
	require.NoError(t, err)
	require.Equal(t, ids, again)
}

func TestRank_ByTag(t *testing.T) {
	ctx := context.Background()
	m := memory.NewInMemoryProvider()
	emb := oracle.NewHashEmbedder(dim)
	a, _ := m.UpsertEntity(ctx, model.EntityInput{Type: model.EntityPaper, Name: "a"})
	b, _ := m.UpsertEntity(ctx, model.EntityInput{Type: model.EntityPaper, Name: "b"})
	va, _ := emb.Embed(ctx, "transformers for vision")
	vb, _ := emb.Embed(ctx, "soil chemistry")
	_, _ = m.AddOrUpdateTag(ctx, model.TagInput{EntityID: a, Name: "summary", Value: "x", Embedding: va})
	_, _ = m.AddOrUpdateTag(ctx, model.TagInput{EntityID: b, Name: "summary", Value: "y", Embedding: vb})

	s := NewSearcher(m, emb, zap.NewNop())
	ids, err := s.Rank(ctx, Query{Text: "transformers for vision", TagName: "summary", K: 1})
	require.NoError(t, err)
	require.Equal(t, []int64{a}, ids)
}

func TestRank_TagSearchRejectsEntityFilters(t *testing.T) {
	s := NewSearcher(memory.NewInMemoryProvider(), oracle.NewHashEmbedder(dim), zap.NewNop())
	_, err := s.Rank(context.Background(), Query{Text: "x", TagName: "summary", Keywords: []string{"x"}})
	require.ErrorIs(t, err, model.ErrInvalidArgument)
	_, err = s.Rank(context.Background(), Query{Text: "x", TagName: "summary", EntityType: model.EntityPaper})
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestRank_RequiresInput(t *testing.T) {
	s := NewSearcher(memory.NewInMemoryProvider(), oracle.NewHashEmbedder(dim), zap.NewNop())
	_, err := s.Rank(context.Background(), Query{})
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	require.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
	require.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 1}))
}
