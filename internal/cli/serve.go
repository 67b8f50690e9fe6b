package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/agent"
	"github.com/tessera-ai/tessera/internal/api/handlers"
	"github.com/tessera-ai/tessera/internal/chunking"
	"github.com/tessera-ai/tessera/internal/config"
	"github.com/tessera-ai/tessera/internal/database"
	"github.com/tessera-ai/tessera/internal/ingest"
	"github.com/tessera-ai/tessera/internal/jobs"
	"github.com/tessera-ai/tessera/internal/openai"
	"github.com/tessera-ai/tessera/internal/repository"
	"github.com/tessera-ai/tessera/internal/retrieval"
	"github.com/tessera-ai/tessera/internal/server"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the tessera API server with its background ingestion worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	documentRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	ingestJobRepo := repository.NewIngestJobRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	var embeddingClient *openai.Client
	var chatClient *openai.ChatClient
	if cfg.HasOpenAI() {
		embeddingClient = openai.NewClientWithConfig(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			EmbeddingModel: cfg.EmbeddingModel,
			RatePerSecond:  cfg.EmbedRatePerSecond,
			Burst:          cfg.EmbedBurst,
		})
		chatClient = openai.NewChatClient(openai.ChatConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.ChatModel,
		})
	} else {
		log.Println("OPENAI_API_KEY not set: dense search and generation degrade to lexical paths")
	}

	chunkOpts := chunking.Options{
		Strategy:      chunking.Strategy(cfg.ChunkStrategy),
		MaxTokens:     cfg.ChunkMaxTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
	}
	var splitter *chunking.Splitter
	if embeddingClient != nil {
		splitter = chunking.NewSemanticSplitter(embeddingClient)
	} else {
		splitter = chunking.NewSplitter()
	}

	var embedder ingest.Embedder
	if embeddingClient != nil {
		embedder = embeddingClient
	}
	ingestSvc := ingest.NewService(documentRepo, ingestJobRepo, txRunner, splitter, embedder, chunkOpts)

	ingestProcessor := jobs.NewIngestWorker(ingestJobRepo, ingestSvc)
	ingestWorker := jobs.NewWorker(ingestProcessor, cfg.WorkerPollInterval)
	go ingestWorker.Start(ctx)
	log.Println("ingest worker started")

	retentionProcessor := jobs.NewRetentionWorker(sessionRepo, cfg.SessionRetention)
	retentionWorker := jobs.NewWorker(retentionProcessor, time.Hour)
	go retentionWorker.Start(ctx)

	var queryEmbedder retrieval.QueryEmbedder
	if embeddingClient != nil {
		queryEmbedder = embeddingClient
	}
	engine := retrieval.NewEngine(chunkRepo, queryEmbedder, retrieval.Config{
		TopK:            cfg.RetrievalTopK,
		OverFetch:       cfg.RetrievalOverFetch,
		RerankSize:      cfg.RetrievalRerankSize,
		DedupSimilarity: cfg.RetrievalDedupSim,
	})

	var llm agent.LLM
	if chatClient != nil {
		llm = chatClient
	}
	orchestrator := agent.NewOrchestrator(sessionRepo, engine, llm, agent.Config{
		TopK:              cfg.RetrievalTopK,
		MaxRetries:        cfg.AgentMaxRetries,
		RetrievalTimeout:  cfg.RetrievalStepTimeout,
		GenerationTimeout: cfg.GenerationStepTimeout,
	})

	documentHandler := handlers.NewDocumentHandler(ingestSvc, documentRepo)
	queryHandler := handlers.NewQueryHandler(orchestrator, sessionRepo)

	router := server.NewRouter(server.RouterConfig{
		DocumentHandler: documentHandler,
		QueryHandler:    queryHandler,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	ingestWorker.Stop()
	retentionWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
