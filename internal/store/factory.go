package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/store/memory"
	"github.com/shaibs3/ResearchGraph/internal/store/postgres"
	"github.com/shaibs3/ResearchGraph/internal/store/shared"
	"github.com/shaibs3/ResearchGraph/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ProviderFactory creates a GraphProvider from its JSON configuration.
type ProviderFactory interface {
	CreateProvider(configJSON string) (GraphProvider, error)
}

type DbProviderFactory struct {
	logger       *zap.Logger
	telemetry    *telemetry.Telemetry
	embeddingDim int
}

// FactoryOption configures a DbProviderFactory.
type FactoryOption func(*DbProviderFactory)

// WithEmbeddingDim pins the vector width the embedders produce. Providers get
// it as extra_details.embedding_dim unless the configuration names its own,
// in which case the two must agree.
func WithEmbeddingDim(dim int) FactoryOption {
	return func(f *DbProviderFactory) {
		f.embeddingDim = dim
	}
}

func NewDbProviderFactory(logger *zap.Logger, tel *telemetry.Telemetry, opts ...FactoryOption) *DbProviderFactory {
	f := &DbProviderFactory{
		logger:    logger.Named("factory"),
		telemetry: tel,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// reconcileEmbeddingDim fills in or checks extra_details.embedding_dim
// against the factory's embedding width.
func (f *DbProviderFactory) reconcileEmbeddingDim(config *shared.DbProviderConfig) error {
	if f.embeddingDim <= 0 {
		return nil
	}
	if config.ExtraDetails == nil {
		config.ExtraDetails = map[string]interface{}{}
	}
	if _, ok := config.ExtraDetails["embedding_dim"]; !ok {
		config.ExtraDetails["embedding_dim"] = f.embeddingDim
		return nil
	}
	if got := config.EmbeddingDim(0); got != f.embeddingDim {
		return fmt.Errorf("extra_details.embedding_dim %v does not match embedding dimension %d: %w",
			config.ExtraDetails["embedding_dim"], f.embeddingDim, model.ErrInvalidArgument)
	}
	return nil
}

func (f *DbProviderFactory) CreateProvider(configJSON string) (GraphProvider, error) {
	var config shared.DbProviderConfig
	if err := json.Unmarshal([]byte(configJSON), &config); err != nil {
		return nil, fmt.Errorf("failed to parse database configuration JSON: %w", err)
	}

	f.logger.Info("creating graph provider", zap.String("db_type", config.DbType.String()))

	if !config.DbType.IsValid() {
		return nil, fmt.Errorf("unsupported database type: %s", config.DbType)
	}
	if err := f.reconcileEmbeddingDim(&config); err != nil {
		return nil, err
	}

	var meter metric.Meter
	if f.telemetry != nil {
		meter = f.telemetry.Meter
	}
	if meter != nil {
		InitStoreMetrics(meter)
	}

	var provider GraphProvider
	switch config.DbType {
	case shared.DbTypePostgres:
		pg, err := postgres.NewPostgresProvider(config, f.logger, meter)
		if err != nil {
			return nil, err
		}
		provider = pg
	case shared.DbTypeMemory:
		f.logger.Info("using in-memory graph provider")
		provider = memory.NewInMemoryProvider()
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.DbType)
	}
	RecordProviderCreated(context.Background(), config.DbType.String())
	return provider, nil
}
