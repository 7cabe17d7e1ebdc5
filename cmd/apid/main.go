package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haesolkim/bokjibot/internal/cache"
	"github.com/haesolkim/bokjibot/internal/config"
	"github.com/haesolkim/bokjibot/internal/intent"
	"github.com/haesolkim/bokjibot/internal/llm"
	"github.com/haesolkim/bokjibot/internal/queue"
	"github.com/haesolkim/bokjibot/internal/searchstore"
	"github.com/haesolkim/bokjibot/internal/server"
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
		slog.Error("failed to run API server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting chatbot API",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	// Redis backs the job queue, the result store and the answer cache.
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

	// PostgreSQL serves page metadata for cursor pages.
	store, err := searchstore.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()
	slog.Info("connected to PostgreSQL")

	llmClient := llm.NewGeminiClient(cfg.GeminiAPIKey,
		llm.WithBaseURL(cfg.GeminiBaseURL),
		llm.WithModel(cfg.GeminiModel),
	)
	slog.Info("initialized Gemini LLM", "model", cfg.GeminiModel)

	jobQueue := queue.NewRedisQueue(redisClient)
	answerCache := cache.New(redisClient, cfg.AnswerCacheTTL)
	extractor := intent.NewExtractor(llmClient, answerCache, cfg.IntentTimeout, cfg.RetryAttempts, cfg.RetryBaseWait)

	handlers := server.NewHandlers(jobQueue, jobQueue, store, answerCache, extractor, server.HandlerConfig{
		DisplayCount: cfg.DisplayCount,
		AdminSecret:  cfg.AdminSecret,
	})

	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"}, // Configure in production
	}, handlers)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ queue.Queue            = (*queue.RedisQueue)(nil)
	_ queue.ResultStore      = (*queue.RedisQueue)(nil)
	_ server.PageLookup      = (*searchstore.PostgresStore)(nil)
	_ server.IntentExtractor = (*intent.Extractor)(nil)
	_ llm.LLM                = (*llm.GeminiClient)(nil)
)
