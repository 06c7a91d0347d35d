package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BerylCAtieno/audit-auto-api/internal/analyzer"
	"github.com/BerylCAtieno/audit-auto-api/internal/chunker"
	"github.com/BerylCAtieno/audit-auto-api/internal/config"
	"github.com/BerylCAtieno/audit-auto-api/internal/db"
	"github.com/BerylCAtieno/audit-auto-api/internal/llm"
	"github.com/BerylCAtieno/audit-auto-api/internal/repository"
	"github.com/BerylCAtieno/audit-auto-api/internal/router"
	"github.com/BerylCAtieno/audit-auto-api/internal/services"
	"github.com/BerylCAtieno/audit-auto-api/internal/storage"
	"github.com/BerylCAtieno/audit-auto-api/internal/transactions"
	"github.com/BerylCAtieno/audit-auto-api/internal/utils"
	"github.com/BerylCAtieno/audit-auto-api/internal/vectorstore"
	"github.com/jmoiron/sqlx"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := utils.NewLogger(cfg.LogLevel)

	// Migrate and connect
	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to open database", "error", err, "path", cfg.DatabasePath)
	}
	defer database.Close()

	ctx := context.Background()

	archive, err := storage.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize upload storage", "error", err, "backend", cfg.StorageBackend)
	}

	// The genai client is created on first use
	gemini := llm.NewGeminiClient(cfg.GeminiAPIKey)
	gateway := llm.NewGateway(gemini, cfg.FallbackModel, logger,
		llm.WithRetryPolicy(llm.RetryPolicy{
			MaxAttempts: cfg.LLMMaxRetries,
			BaseDelay:   cfg.LLMBaseDelay,
			ErrorDelay:  cfg.LLMErrorDelay,
		}),
		llm.WithRequestsPerMinute(cfg.LLMRequestsPerMinute),
	)
	embedder := llm.NewEmbedder(gemini, cfg.EmbeddingModel)

	store, err := newVectorStore(ctx, cfg, database, embedder)
	if err != nil {
		logger.Fatal("Failed to initialize vector store", "error", err, "backend", cfg.VectorBackend)
	}

	textChunker, err := chunker.New(
		chunker.WithChunkSize(cfg.ChunkSize),
		chunker.WithOverlap(cfg.ChunkOverlap),
	)
	if err != nil {
		logger.Fatal("Invalid chunking configuration", "error", err)
	}

	scanner := transactions.NewScanner(logger,
		transactions.WithThresholds(transactions.Thresholds{
			RoundUnit:       cfg.AuditRoundUnit,
			HighAmount:      cfg.AuditHighAmount,
			VendorFrequency: cfg.AuditVendorFrequency,
			FallbackRows:    transactions.DefaultThresholds.FallbackRows,
		}),
		transactions.WithPayloadLimit(cfg.AuditPayloadLimit),
	)

	auditService := services.NewAuditService(services.Dependencies{
		Repo:         repository.NewRepository(database),
		Storage:      archive,
		Scanner:      scanner,
		Analyzer:     analyzer.NewAuditAnalyzer(gateway, cfg.PrimaryModel, logger),
		Answerer:     analyzer.NewQuestionAnswerer(gateway, cfg.PrimaryModel, logger),
		Store:        store,
		Chunker:      textChunker,
		Logger:       logger,
		BatchSize:    cfg.VectorBatchSize,
		QueryResults: cfg.QueryResults,
	})

	// Setup HTTP router
	handler := router.NewRouter(auditService, logger, cfg.MaxFileSize)

	// LLM retries can hold a request for a minute or more
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("Starting server",
			"port", cfg.Port,
			"storage", cfg.StorageBackend,
			"vector_store", cfg.VectorBackend,
			"model", cfg.PrimaryModel)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}

func newVectorStore(ctx context.Context, cfg *config.Config, database *sqlx.DB, embedder vectorstore.Embedder) (vectorstore.Store, error) {
	if cfg.VectorBackend == config.VectorChroma {
		store, err := vectorstore.NewChromaStore(vectorstore.ChromaConfig{
			Host:       cfg.ChromaHost,
			APIKey:     cfg.ChromaAPIKey,
			Tenant:     cfg.ChromaTenant,
			Database:   cfg.ChromaDatabase,
			Collection: cfg.ChromaCollection,
		}, embedder)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return vectorstore.NewSQLiteStore(ctx, database, embedder)
}
