package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"genlux/internal/adapter/repo"
	"genlux/internal/http/handlers"
	httpapi "genlux/internal/http/httpapi"
	"genlux/internal/infra"
	"genlux/internal/infra/credentials"
	"genlux/internal/infra/geoip"
	"genlux/internal/infra/google"
	"genlux/internal/progress"
	"genlux/internal/storage"
)

func main() {
	// Muat .env (opsional)
	_ = godotenv.Load()

	// Konfigurasi & logger
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	if err := cfg.RequireJWTSecret(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer := infra.InitTracer(ctx, "genlux-api", cfg.OTelEnabled, logger)
	defer func() { _ = shutdownTracer(context.Background()) }()

	// DB pool (pgxpool)
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	// Progress: Redis bila tersedia, selain itu hanya polling DB
	var bus progress.Bus
	redisClient, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, event streams fall back to polling")
	}
	if redisClient != nil {
		defer redisClient.Close()
		bus = progress.NewRedisBus(redisClient, &logger)
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	files, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage")
	}

	readiness := map[string]handlers.ReadyCheck{
		"postgres": dbpool.Ping,
	}
	if redisClient != nil {
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	app := &handlers.App{
		Logger:         logger,
		JWTSecret:      cfg.JWTSecret,
		FreeUses:       cfg.FreeUses,
		GoogleVerifier: google.NewVerifier(cfg.GoogleIssuer, cfg.GoogleClientID, &http.Client{Timeout: 10 * time.Second}),
		Users:          repo.NewUserRepository(runner),
		Jobs:           repo.NewJobRepository(runner),
		History:        repo.NewHistoryRepository(runner),
		Usage:          repo.NewUsageRepository(runner),
		Credentials:    credentials.NewStore(runner),
		Files:          files,
		Progress:       bus,
		ReadyChecks:    readiness,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   "en",
		CountryLookup:   resolver.Lookup(),
	})

	// HTTP server wrapper dari infra
	server := infra.NewHTTPServer(cfg, router, logger)
	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}
