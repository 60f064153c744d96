package oracle

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// SafeEmbedder bounds an Embedder with a timeout and replaces any failure
// with a zero vector of the configured width. Embed never returns an error.
type SafeEmbedder struct {
	inner   Embedder
	dim     int
	timeout time.Duration
	logger  *zap.Logger
}

func NewSafeEmbedder(inner Embedder, dim int, timeout time.Duration, logger *zap.Logger) *SafeEmbedder {
	return &SafeEmbedder{
		inner:   inner,
		dim:     dim,
		timeout: timeout,
		logger:  logger.Named("embedder"),
	}
}

func (s *SafeEmbedder) Dim() int {
	return s.dim
}

func (s *SafeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	vec, err := s.inner.Embed(ctx, text)
	if err == nil && len(vec) != s.dim {
		err = fmt.Errorf("embedding has %d dimensions, want %d", len(vec), s.dim)
	}
	if err != nil {
		s.logger.Warn("embedding failed, using zero vector", zap.Error(err))
		return make([]float32, s.dim), nil
	}
	return vec, nil
}

// HashEmbedder is a deterministic feature-hashing embedder: each lower-cased
// token adds ±1 to one bucket and the result is L2-normalised.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if h.dim <= 0 {
		return nil, fmt.Errorf("hash embedder dimension must be positive")
	}
	vec := make([]float32, h.dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(tok))
		sum := hasher.Sum64()
		bucket := int(sum % uint64(h.dim))
		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
