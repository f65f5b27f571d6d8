// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/DisciteAI/backend-ai-service/internal/config"
	"github.com/DisciteAI/backend-ai-service/internal/domain/ports/adapter"
	aiAdapters "github.com/DisciteAI/backend-ai-service/internal/infra/adapters/ai"
	pg "github.com/DisciteAI/backend-ai-service/internal/infra/db/postgres"
	"github.com/DisciteAI/backend-ai-service/internal/infra/logging"
	"github.com/DisciteAI/backend-ai-service/internal/infra/metrics"
	"github.com/DisciteAI/backend-ai-service/internal/infra/progress"
	red "github.com/DisciteAI/backend-ai-service/internal/infra/redis"
	"github.com/DisciteAI/backend-ai-service/internal/infra/web"
	"github.com/DisciteAI/backend-ai-service/internal/retry"
	"github.com/DisciteAI/backend-ai-service/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop AI allowed)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	sessionCache := red.NewSessionCache(redisClient, cfg.Redis.TTL)

	// ---- Repositories ----
	sessionRepo := pg.NewSessionRepo(pool, sessionCache)
	txManager := pg.NewTxManager(pool)

	// ---- Progress API client ----
	progressClient := progress.NewClient(cfg.Progress, logger)

	// ---- Conversation model ----
	var ai adapter.ConversationModel
	switch cfg.AI.Provider {
	case "gemini":
		ai, err = aiAdapters.NewGeminiModel(ctx, cfg.AI, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		logger.Info().Str("model", cfg.AI.Model).Msg("AI provider: gemini")
	case "openai":
		ai, err = aiAdapters.NewOpenAICompatModel(cfg.AI, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		logger.Info().Str("model", cfg.AI.Model).Str("base", cfg.AI.OpenAIBaseURL).Msg("AI provider: openai")
	case "noop":
		if !cfg.Runtime.Dev {
			logger.Fatal().Msg("ai.provider=noop requires -dev")
		}
		ai = aiAdapters.NewNoopModel(logger)
		logger.Warn().Msg("AI provider: noop (canned replies)")
	default:
		logger.Fatal().Str("provider", cfg.AI.Provider).Msg("unknown AI provider")
	}

	// ---- Use case ----
	prompts := usecase.NewPromptBuilder(cfg.Session.CompletionMarker, cfg.Session.MaxHistory, logger)
	detector := usecase.NewCompletionDetector(cfg.Session.CompletionMarker, logger)
	sessionUC := usecase.NewSessionUseCase(
		sessionRepo,
		txManager,
		progressClient,
		ai,
		prompts,
		detector,
		locker,
		retry.Policy{
			MaxAttempts:     cfg.AI.Retry.MaxAttempts,
			BaseDelay:       cfg.AI.Retry.BaseDelay,
			MaxDelay:        cfg.AI.Retry.MaxDelay,
			ExponentialBase: cfg.AI.Retry.ExponentialBase,
		},
		cfg.Redis.LockTTL,
		logger,
	)

	// ---- HTTP server ----
	server := web.NewServer(sessionUC, pool, progressClient, ai, cfg.Server.APIKey, logger)
	if err := server.Serve(ctx, fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		logger.Error().Err(err).Msg("http server stopped")
	}
	logger.Info().Msg("shutdown complete")
}
