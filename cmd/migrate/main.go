package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"genlux/internal/infra"
	"genlux/internal/migrations"
)

func main() {
	_ = godotenv.Load()

	logger := infra.NewLogger(os.Getenv("APP_ENV")).With().Str("cmd", "migrate").Logger()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("open database: %w", err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		exitWithError(fmt.Errorf("ping database: %w", err))
	}

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		exitWithError(err)
	}
	if len(applied) == 0 {
		logger.Info().Msg("schema up to date")
		return
	}
	logger.Info().Strs("versions", applied).Msg("migrations applied")
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
