package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds all runtime settings, read from the environment.
type Config struct {
	Port          string
	Environment   string
	LogLevel      string
	GraphDBConfig string

	RPSLimit float64
	RPSBurst int

	CrawlIntervalSeconds  int
	EnrichIntervalSeconds int
	CrawlBatchSize        int
	FetchTimeoutSeconds   int
	DownloadsDir          string

	EmbeddingDim   int
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	EmbeddingModel string
	ChatModel      string
}

// Load reads an optional .env file and then the process environment.
func Load(logger *zap.Logger) *Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", zap.Error(err))
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Environment:   getEnv("ENVIRONMENT", "production"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		GraphDBConfig: getEnv("GRAPH_DB_CONFIG", ""),

		RPSLimit: getEnvFloat(logger, "RPS_LIMIT", 10),
		RPSBurst: getEnvInt(logger, "RPS_BURST", 20),

		CrawlIntervalSeconds:  getEnvInt(logger, "CRAWL_INTERVAL_SECONDS", 30),
		EnrichIntervalSeconds: getEnvInt(logger, "ENRICH_INTERVAL_SECONDS", 30),
		CrawlBatchSize:        getEnvInt(logger, "CRAWL_BATCH_SIZE", 20),
		FetchTimeoutSeconds:   getEnvInt(logger, "FETCH_TIMEOUT_SECONDS", 10),
		DownloadsDir:          getEnv("DOWNLOADS_DIR", "downloads"),

		EmbeddingDim:   getEnvInt(logger, "EMBEDDING_DIM", 1536),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		ChatModel:      getEnv("CHAT_MODEL", "gpt-4o-mini"),
	}

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.String("environment", cfg.Environment),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("graph_db_configured", cfg.GraphDBConfig != ""),
		zap.Bool("openai_configured", cfg.OpenAIAPIKey != ""),
	)
	return cfg
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(logger *zap.Logger, key string, def int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		logger.Warn("invalid integer setting, using default", zap.String("key", key), zap.String("value", raw), zap.Int("default", def))
		return def
	}
	return v
}

func getEnvFloat(logger *zap.Logger, key string, def float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		logger.Warn("invalid numeric setting, using default", zap.String("key", key), zap.String("value", raw), zap.Float64("default", def))
		return def
	}
	return v
}
