package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	ChatModel      string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	// Chunking defaults applied when an ingest request does not override them.
	ChunkStrategy      string `envconfig:"CHUNK_STRATEGY" default:"recursive"`
	ChunkMaxTokens     int    `envconfig:"CHUNK_MAX_TOKENS" default:"512"`
	ChunkOverlapTokens int    `envconfig:"CHUNK_OVERLAP_TOKENS" default:"50"`

	// Retrieval tuning.
	RetrievalTopK       int     `envconfig:"RETRIEVAL_TOP_K" default:"5"`
	RetrievalOverFetch  int     `envconfig:"RETRIEVAL_OVER_FETCH" default:"3"`
	RetrievalRerankSize int     `envconfig:"RETRIEVAL_RERANK_SIZE" default:"20"`
	RetrievalDedupSim   float64 `envconfig:"RETRIEVAL_DEDUP_SIMILARITY" default:"0.95"`

	// Agent workflow limits.
	AgentMaxRetries       int           `envconfig:"AGENT_MAX_RETRIES" default:"2"`
	RetrievalStepTimeout  time.Duration `envconfig:"RETRIEVAL_STEP_TIMEOUT" default:"5s"`
	GenerationStepTimeout time.Duration `envconfig:"GENERATION_STEP_TIMEOUT" default:"30s"`

	// Ingestion worker.
	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"5s"`
	EmbedRatePerSecond float64       `envconfig:"EMBED_RATE_PER_SECOND" default:"10"`
	EmbedBurst         int           `envconfig:"EMBED_BURST" default:"20"`

	// Completed sessions older than this are deleted by the retention job.
	SessionRetention time.Duration `envconfig:"SESSION_RETENTION" default:"720h"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("TESSERA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}
