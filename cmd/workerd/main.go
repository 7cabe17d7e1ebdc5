package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/haesolkim/bokjibot/internal/cache"
	"github.com/haesolkim/bokjibot/internal/config"
	"github.com/haesolkim/bokjibot/internal/embedder"
	"github.com/haesolkim/bokjibot/internal/llm"
	"github.com/haesolkim/bokjibot/internal/query"
	"github.com/haesolkim/bokjibot/internal/queue"
	"github.com/haesolkim/bokjibot/internal/reranker"
	"github.com/haesolkim/bokjibot/internal/searchstore"
	"github.com/haesolkim/bokjibot/internal/worker"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run worker", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting retrieval worker", "environment", cfg.Environment)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	slog.Info("connected to Redis", "addr", cfg.RedisAddr)

	store, err := searchstore.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()
	slog.Info("connected to PostgreSQL")

	embed := embedder.NewGeminiEmbedder(embedder.GeminiConfig{
		BaseURL: cfg.GeminiBaseURL,
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiEmbeddingModel,
	})
	slog.Info("initialized Gemini embedder", "model", cfg.GeminiEmbeddingModel)

	llmClient := llm.NewGeminiClient(cfg.GeminiAPIKey,
		llm.WithBaseURL(cfg.GeminiBaseURL),
		llm.WithModel(cfg.GeminiModel),
	)
	slog.Info("initialized Gemini LLM", "model", cfg.GeminiModel)

	jobQueue := queue.NewRedisQueue(redisClient)
	answerCache := cache.New(redisClient, cfg.AnswerCacheTTL)
	expander := query.NewExpander(llmClient, cfg.ExpandTimeout, cfg.RetryAttempts, cfg.RetryBaseWait)
	rerank := reranker.NewLLMReranker(llmClient,
		reranker.WithWindow(cfg.RerankWindow),
		reranker.WithTimeout(cfg.RerankTimeout),
		reranker.WithRetry(cfg.RetryAttempts, cfg.RetryBaseWait),
	)

	w := worker.New(jobQueue, jobQueue, store, embed, expander, rerank, answerCache, worker.Config{
		SearchLimit:       cfg.SearchLimit,
		DisplayCount:      cfg.DisplayCount,
		SemanticThreshold: cfg.SemanticThreshold,
		EmbedTimeout:      cfg.EmbedTimeout,
		RetryAttempts:     cfg.RetryAttempts,
		RetryBaseWait:     cfg.RetryBaseWait,
	})

	// Metrics-only listener; the worker has no API surface of its own.
	metricsSrv := &http.Server{Addr: ":9091", Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	defer metricsSrv.Close()

	w.Start(ctx)

	slog.Info("worker stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ queue.Queue       = (*queue.RedisQueue)(nil)
	_ queue.ResultStore = (*queue.RedisQueue)(nil)
	_ searchstore.Store = (*searchstore.PostgresStore)(nil)
	_ embedder.Embedder = (*embedder.GeminiEmbedder)(nil)
	_ reranker.Reranker = (*reranker.LLMReranker)(nil)
	_ llm.LLM           = (*llm.GeminiClient)(nil)
)
