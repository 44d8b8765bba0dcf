package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"genlux/internal/adapter/repo"
	"genlux/internal/infra"
	"genlux/internal/infra/credentials"
)

func main() {
	var (
		keyFlag    string
		emailFlag  string
		deleteFlag bool
	)
	flag.StringVar(&keyFlag, "key", "", "Gemini API key (fallbacks to GEMINI_API_KEY)")
	flag.StringVar(&emailFlag, "email", "", "store the key for this user instead of globally")
	flag.BoolVar(&deleteFlag, "delete", false, "remove the user's key (requires -email)")
	flag.Parse()

	email := strings.TrimSpace(emailFlag)
	if deleteFlag && email == "" {
		exitWithError(errors.New("-delete requires -email"))
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" && !deleteFlag {
		key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if key == "" && !deleteFlag {
		exitWithError(errors.New("GEMINI API key is required via -key or environment"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to create pool: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "geminikey").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	store := credentials.NewStore(runner)

	if email == "" {
		if err := store.SetGeminiAPIKey(ctx, key); err != nil {
			exitWithError(fmt.Errorf("failed to persist gemini api key: %w", err))
		}
		fmt.Println("GEMINI API key stored successfully")
		return
	}

	user, err := repo.NewUserRepository(runner).GetByEmail(ctx, email)
	if err != nil {
		exitWithError(fmt.Errorf("failed to load user %s: %w", email, err))
	}

	if deleteFlag {
		removed, err := store.DeleteUserGeminiAPIKey(ctx, user.ID)
		if err != nil {
			exitWithError(fmt.Errorf("failed to delete key: %w", err))
		}
		if !removed {
			fmt.Printf("User %s had no stored key\n", user.Email)
			return
		}
		fmt.Printf("GEMINI API key removed for %s\n", user.Email)
		return
	}

	if err := store.SetUserGeminiAPIKey(ctx, user.ID, key); err != nil {
		exitWithError(fmt.Errorf("failed to persist user api key: %w", err))
	}
	fmt.Printf("GEMINI API key stored for %s\n", user.Email)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
