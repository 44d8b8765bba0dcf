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
	"genlux/internal/domain"
	"genlux/internal/infra"
)

func main() {
	var (
		idFlag       string
		emailFlag    string
		planFlag     string
		freeUsesFlag int
	)

	flag.StringVar(&idFlag, "id", "", "user ID to update (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to update")
	flag.StringVar(&planFlag, "plan", "pro", "plan to assign (free, pro)")
	flag.IntVar(&freeUsesFlag, "free-uses", -1, "reset remaining free generations (negative keeps current value)")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)

	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	plan, err := domain.ParsePlan(strings.TrimSpace(strings.ToLower(planFlag)))
	if err != nil {
		exitWithError(fmt.Errorf("unsupported plan %q", planFlag))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "userplan").Logger()
	users := repo.NewUserRepository(infra.NewSQLRunner(pool, logger))

	var user *domain.User
	if userID != "" {
		user, err = users.GetByID(ctx, userID)
	} else {
		user, err = users.GetByEmail(ctx, email)
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to load user: %w", err))
	}

	var freeUses *int
	if freeUsesFlag >= 0 {
		freeUses = &freeUsesFlag
	}
	updated, err := users.SetPlan(ctx, user.ID, plan, freeUses)
	if err != nil {
		exitWithError(fmt.Errorf("failed to update user plan: %w", err))
	}

	fmt.Printf("User %s (%s) updated to plan %s\n", updated.ID, updated.Email, updated.Plan)
	fmt.Printf("free_uses_remaining=%d\n", updated.FreeUsesRemaining)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
