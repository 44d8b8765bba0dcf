package repo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"genlux/internal/domain"
	"genlux/internal/infra"
	"genlux/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(sql infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// UpsertGoogleUser inserts or refreshes a user keyed by Google subject. New
// accounts start on the free plan with freeUses generations.
func (r *UserRepositoryPG) UpsertGoogleUser(ctx context.Context, user *domain.User, freeUses int) (*domain.User, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QUpsertGoogleUser,
		user.GoogleSub,
		user.Email,
		user.Name,
		user.Picture,
		user.Locale,
		freeUses,
	)
	return scanUser(row)
}

// GetByID fetches a user by UUID.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByID, id))
}

// GetByEmail fetches a user by email, case-insensitively.
func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByEmail, email))
}

// ConsumeFreeUse decrements a free user's allowance and returns what is
// left. Paid users are untouched and get -1.
func (r *UserRepositoryPG) ConsumeFreeUse(ctx context.Context, userID string) (int, error) {
	var remaining int
	if err := r.sql.QueryRow(ctx, sqlinline.QConsumeFreeUse, userID).Scan(&remaining); err != nil {
		if infra.IsNoRows(err) {
			return -1, nil
		}
		return 0, err
	}
	return remaining, nil
}

// SetPlan changes the plan and optionally resets the free allowance.
func (r *UserRepositoryPG) SetPlan(ctx context.Context, userID string, plan domain.UserPlan, freeUses *int) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QUpdateUserPlan, userID, string(plan), freeUses))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.GoogleSub, &u.Email, &u.Name, &u.Picture, &u.Locale, &u.Plan, &u.FreeUsesRemaining, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

var _ domain.UserRepository = (*UserRepositoryPG)(nil)
