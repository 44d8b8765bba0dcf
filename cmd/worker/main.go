package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"genlux/internal/adapter/repo"
	"genlux/internal/infra"
	"genlux/internal/infra/credentials"
	"genlux/internal/progress"
	"genlux/internal/providers/genai"
	videoprovider "genlux/internal/providers/video"
	"genlux/internal/storage"
	"genlux/internal/videojob"
	"genlux/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer := infra.InitTracer(ctx, "genlux-worker", cfg.OTelEnabled, logger)
	defer func() { _ = shutdownTracer(context.Background()) }()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	var bus progress.Bus
	redisClient, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("worker: redis unavailable, progress is stored in the database only")
	}
	if redisClient != nil {
		defer redisClient.Close()
		bus = progress.NewRedisBus(redisClient, &logger)
	}

	geminiClient := genai.NewClient(genai.Options{
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.VeoModel,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Logger:     &logger,
	})
	provider, err := videoprovider.NewProvider(cfg.VideoProvider, geminiClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure video provider")
	}

	credStore := credentials.NewStore(runner)
	fallbackKey := strings.TrimSpace(cfg.GeminiAPIKey)
	switch {
	case fallbackKey != "":
	case cfg.VideoProvider == videoprovider.KindSynthetic:
		fallbackKey = videoprovider.KindSynthetic
	default:
		logger.Warn().Str("model", geminiClient.Model()).Msg("worker: GEMINI_API_KEY unset, only stored keys will be used")
	}

	orchestrator, err := videojob.New(videojob.Options{
		Provider:     provider,
		Credentials:  credentials.ContextScoped{Store: credStore, Fallback: fallbackKey},
		PollInterval: cfg.PollInterval,
		MaxWait:      cfg.PollMaxWait,
		MaxPolls:     cfg.PollMaxAttempts,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure orchestrator")
	}

	workers, err := worker.New(worker.Options{
		Jobs:        repo.NewJobRepository(runner),
		Users:       repo.NewUserRepository(runner),
		History:     repo.NewHistoryRepository(runner),
		Usage:       repo.NewUsageRepository(runner),
		Generator:   videojob.NewRegistry(orchestrator),
		Store:       fileStore,
		Bus:         bus,
		Concurrency: cfg.WorkerCount,
		IdleDelay:   cfg.WorkerIdleDelay,
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: invalid configuration")
	}

	logger.Info().
		Int("concurrency", cfg.WorkerCount).
		Str("provider", cfg.VideoProvider).
		Str("model", geminiClient.Model()).
		Msg("worker: started")

	if err := workers.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
