package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	_ "github.com/lib/pq"
	"github.com/shaibs3/ResearchGraph/internal/db"
	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/store/shared"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresProvider stores the graph in Postgres with pgvector. Entity, task
// and queue tables go through database/sql; the frontier tables go through
// GORM on the same connection pool.
type PostgresProvider struct {
	db     *sql.DB
	gormDB *gorm.DB
	logger *zap.Logger
	cb     *gobreaker.CircuitBreaker
	dim    int
}

func NewPostgresProvider(config shared.DbProviderConfig, logger *zap.Logger, meter metric.Meter) (*PostgresProvider, error) {
	if meter != nil {
		initProviderMetrics(meter)
	}
	pgLogger := logger.Named("postgres")

	connStr, ok := config.ExtraDetails["conn_str"].(string)
	if !ok {
		return nil, fmt.Errorf("conn_str is required for Postgres provider")
	}
	dim := config.EmbeddingDim(db.DefaultEmbeddingDim)
	pgLogger.Info("initializing Postgres provider", zap.Int("embedding_dim", dim))

	dbConn, err := sql.Open("postgres", connStr)
	if err != nil {
		pgLogger.Error("failed to open Postgres connection", zap.Error(err))
		return nil, fmt.Errorf("failed to open Postgres connection: %w", err)
	}

	if err := dbConn.Ping(); err != nil {
		pgLogger.Error("failed to ping Postgres", zap.Error(err))
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	if _, err := dbConn.Exec(db.Schema(dim)); err != nil {
		pgLogger.Error("failed to create initial tables", zap.Error(err))
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to create initial tables: %w", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: dbConn}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to open GORM connection: %w", err)
	}
	if err := gormDB.AutoMigrate(&CrawlQueueRow{}, &CrawledRow{}, &CrawlCacheRow{}); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "PostgresDB",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !retryable(err)
		},
	})

	pgLogger.Info("Postgres provider initialized successfully")
	return &PostgresProvider{
		db:     dbConn,
		gormDB: gormDB,
		logger: pgLogger,
		cb:     cb,
		dim:    dim,
	}, nil
}

func (p *PostgresProvider) Close() error {
	return p.db.Close()
}

// retryable reports whether err may succeed on a later attempt. Caller
// mistakes and integrity violations never do.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrInvalidArgument):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case db.IsIntegrityViolation(err):
		return false
	}
	return true
}

// run executes fn behind the circuit breaker with exponential-backoff retry.
func run[T any](ctx context.Context, p *PostgresProvider, op string, fn func() (T, error)) (T, error) {
	var result T
	err := retry.Do(
		func() error {
			res, err := p.cb.Execute(func() (interface{}, error) {
				return fn()
			})
			if err != nil {
				return err
			}
			result = res.(T)
			return nil
		},
		retry.Attempts(3),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("retrying store operation", zap.String("op", op), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	recordOperation(ctx, op, err)
	return result, err
}

// exec is run for operations without a result.
func (p *PostgresProvider) exec(ctx context.Context, op string, fn func() error) error {
	_, err := run(ctx, p, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// withTx runs fn in one transaction, rolling back on any error.
func (p *PostgresProvider) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// advisoryLock serialises writers on key until the transaction ends.
func advisoryLock(ctx context.Context, tx *sql.Tx, key string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("failed to take advisory lock: %w", err)
	}
	return nil
}

// limitArg maps a non-positive limit to NULL, which Postgres reads as LIMIT ALL.
func limitArg(n int) interface{} {
	if n <= 0 {
		return nil
	}
	return n
}
