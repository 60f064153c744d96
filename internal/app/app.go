package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaibs3/ResearchGraph/internal/config"
	"github.com/shaibs3/ResearchGraph/internal/enrichment"
	"github.com/shaibs3/ResearchGraph/internal/frontier"
	"github.com/shaibs3/ResearchGraph/internal/handlers"
	"github.com/shaibs3/ResearchGraph/internal/oracle"
	"github.com/shaibs3/ResearchGraph/internal/router"
	"github.com/shaibs3/ResearchGraph/internal/scheduler"
	"github.com/shaibs3/ResearchGraph/internal/search"
	"github.com/shaibs3/ResearchGraph/internal/store"
	"github.com/shaibs3/ResearchGraph/internal/store/shared"
	"github.com/shaibs3/ResearchGraph/internal/taskgraph"
	"github.com/shaibs3/ResearchGraph/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const embedTimeout = 30 * time.Second

// App wires the graph store, the background jobs and the HTTP surface.
type App struct {
	config    *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Telemetry
	provider  store.GraphProvider
	scheduler *scheduler.Scheduler
	server    *http.Server
}

// oracles bundles the external capabilities. Without an API key only the
// deterministic local ones are available.
type oracles struct {
	embedder  oracle.Embedder
	delegate  oracle.ExecutionDelegate
	gate      oracle.GateOracle
	assessor  oracle.Assessor
	extractor oracle.Extractor
}

func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	tel, err := telemetry.NewTelemetry(logger)
	if err != nil {
		return nil, err
	}
	frontier.InitMetrics(tel.Meter)
	taskgraph.InitMetrics(tel.Meter)
	enrichment.InitMetrics(tel.Meter)
	scheduler.InitMetrics(tel.Meter)

	factory := store.NewDbProviderFactory(logger, tel, store.WithEmbeddingDim(cfg.EmbeddingDim))
	configJSON := cfg.GraphDBConfig
	if configJSON == "" {
		b, _ := json.Marshal(shared.DbProviderConfig{
			DbType:       shared.DbTypeMemory,
			ExtraDetails: map[string]interface{}{},
		})
		configJSON = string(b)
	}
	provider, err := factory.CreateProvider(configJSON)
	if err != nil {
		return nil, err
	}

	ors, err := buildOracles(cfg, logger)
	if err != nil {
		_ = provider.Close()
		return nil, err
	}

	front := frontier.New(provider, logger)
	crawler := frontier.NewCrawler(front,
		frontier.NewFetcher(time.Duration(cfg.FetchTimeoutSeconds)*time.Second, false),
		frontier.CrawlerConfig{DownloadsDir: cfg.DownloadsDir, BatchSize: cfg.CrawlBatchSize},
		logger)
	crawler.OnCrawled(enrichment.Hook(provider))

	registry := enrichment.NewRegistry(
		enrichment.NewIngest(provider, frontier.NewPageCache(front, logger), ors.extractor, ors.embedder, logger),
	)
	if ors.assessor != nil {
		registry.Register(enrichment.NewAssess(provider, provider, ors.assessor, logger))
	}
	drainer := enrichment.NewDrainer(provider, registry, cfg.CrawlBatchSize, logger)

	sched := scheduler.New(logger)
	if err := sched.Register("crawl", time.Duration(cfg.CrawlIntervalSeconds)*time.Second, func(ctx context.Context) error {
		_, err := crawler.Drain(ctx)
		return err
	}); err != nil {
		_ = provider.Close()
		return nil, err
	}
	if err := sched.Register("enrich", time.Duration(cfg.EnrichIntervalSeconds)*time.Second, func(ctx context.Context) error {
		_, err := drainer.Drain(ctx)
		return err
	}); err != nil {
		_ = provider.Close()
		return nil, err
	}

	orch := taskgraph.NewOrchestrator(provider, ors.embedder, ors.delegate, ors.gate, logger)

	limiter := rate.NewLimiter(rate.Limit(cfg.RPSLimit), cfg.RPSBurst)
	handlerList := []router.Handler{
		handlers.NewFrontierHandler(front),
		handlers.NewSearchHandler(search.NewSearcher(provider, ors.embedder, logger), provider),
		handlers.NewTaskHandler(orch, provider),
		handlers.NewJobHandler(sched),
	}
	appRouter := router.NewRouter(limiter, tel, logger, handlerList)

	return &App{
		config:    cfg,
		logger:    logger,
		telemetry: tel,
		provider:  provider,
		scheduler: sched,
		server:    appRouter.CreateServer(":" + cfg.Port),
	}, nil
}

func buildOracles(cfg *config.Config, logger *zap.Logger) (oracles, error) {
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, using local embedder and extractor; task execution and assessment are disabled")
		return oracles{
			embedder:  oracle.NewSafeEmbedder(oracle.NewHashEmbedder(cfg.EmbeddingDim), cfg.EmbeddingDim, embedTimeout, logger),
			extractor: oracle.PlainExtractor{},
		}, nil
	}
	client, err := oracle.NewOpenAIClient(oracle.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Timeout: 2 * time.Minute,
	}, logger)
	if err != nil {
		return oracles{}, err
	}
	return oracles{
		embedder:  oracle.NewSafeEmbedder(oracle.NewOpenAIEmbedder(client, cfg.EmbeddingModel), cfg.EmbeddingDim, embedTimeout, logger),
		delegate:  oracle.NewChatDelegate(client, cfg.ChatModel),
		gate:      oracle.NewChatGate(client, cfg.ChatModel),
		assessor:  oracle.NewChatAssessor(client, cfg.ChatModel),
		extractor: oracle.NewChatExtractor(client, cfg.ChatModel),
	}, nil
}

func (app *App) start() error {
	app.logger.Info("starting server", zap.String("port", app.config.Port))
	app.scheduler.Start()

	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	return nil
}

func (app *App) stop() error {
	app.logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server forced to shutdown", zap.Error(err))
		errs = append(errs, err)
	}
	app.scheduler.Stop()
	if err := app.provider.Close(); err != nil {
		app.logger.Error("failed to close graph provider", zap.Error(err))
		errs = append(errs, err)
	}
	if err := app.telemetry.Shutdown(shutdownCtx); err != nil {
		app.logger.Warn("failed to shut down telemetry", zap.Error(err))
	}

	app.logger.Info("server exited gracefully")
	return errors.Join(errs...)
}

// Run starts the server and background jobs and blocks until SIGINT/SIGTERM.
func (app *App) Run() error {
	if err := app.start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	return app.stop()
}
