package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/llm-council/internal/config"
	"github.com/tjfontaine/llm-council/internal/council"
	"github.com/tjfontaine/llm-council/internal/provider"
	"github.com/tjfontaine/llm-council/internal/server"
	"github.com/tjfontaine/llm-council/internal/storage"
	"github.com/tjfontaine/llm-council/internal/storage/memory"
	"github.com/tjfontaine/llm-council/internal/storage/sqlite"
	"github.com/tjfontaine/llm-council/internal/telemetry"
	"github.com/tjfontaine/llm-council/internal/tokens"
)

const messageRateLimit = 20 // per client per minute

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdown, err := telemetry.InitTracer("llm-council", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	creds := provider.NewCredentials(provider.EnvCredentials(os.Getenv, map[string]string{
		"groq":        cfg.APIKeys.Groq,
		"sambanova":   cfg.APIKeys.SambaNova,
		"google":      cfg.APIKeys.Google,
		"mistral":     cfg.APIKeys.Mistral,
		"cohere":      cfg.APIKeys.Cohere,
		"huggingface": cfg.APIKeys.HuggingFace,
		"openrouter":  cfg.APIKeys.OpenRouter,
	}))
	registry := provider.NewRegistry(creds)

	councilSvc := council.New(registry, logger)
	runner := council.NewRunner(
		councilSvc,
		council.NewCancelRegistry(),
		&storeRecorder{store: store, logger: logger},
		tokens.NewEstimator(),
		logger,
	)

	defaults := storage.CouncilSettings{
		Chairman:      cfg.Council.Chairman,
		Experts:       cfg.Council.Experts,
		TitleProvider: cfg.Council.TitleProvider,
	}

	srv := server.New(cfg.Server.Port, logger)
	handler := server.NewHandler(store, runner, registry, creds, defaults,
		server.NewRateLimiter(messageRateLimit), logger)
	handler.Routes(srv.Router)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router,
	}

	go func() {
		logger.Info("council server listening", slog.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Server shutdown complete")
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite", "":
		if dir := filepath.Dir(cfg.Storage.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		return sqlite.New(cfg.Storage.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}

// storeRecorder adapts storage.Store to the pipeline's analytics sink.
// Failures are logged and swallowed; analytics never fail a run.
type storeRecorder struct {
	store  storage.Store
	logger *slog.Logger
}

func (r *storeRecorder) Record(ctx context.Context, event council.AnalyticsEvent) {
	err := r.store.RecordAnalytics(context.WithoutCancel(ctx), &storage.AnalyticsEvent{
		ConversationID: event.ConversationID,
		Stage:          event.Stage,
		Provider:       event.Provider,
		Model:          event.Model,
		DurationMS:     event.DurationMS,
		Tokens:         event.Tokens,
		Success:        event.Success,
		Error:          event.Error,
	})
	if err != nil {
		r.logger.Warn("failed to record analytics event", slog.String("error", err.Error()))
	}
}
