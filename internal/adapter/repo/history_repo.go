package repo

import (
	"context"

	"genlux/internal/domain"
	"genlux/internal/infra"
	"genlux/internal/sqlinline"
)

const maxHistoryPage = 100

// HistoryRepositoryPG implements domain.HistoryRepository.
type HistoryRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewHistoryRepository(sql infra.SQLExecutor) *HistoryRepositoryPG {
	return &HistoryRepositoryPG{sql: sql}
}

// Append stores item and fills its ID and CreatedAt.
func (r *HistoryRepositoryPG) Append(ctx context.Context, item *domain.HistoryItem) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertHistory,
		item.UserID,
		item.JobID,
		item.Prompt,
		item.AspectRatio,
		item.TargetLength,
		item.StorageKey,
		item.MimeType,
	)
	return row.Scan(&item.ID, &item.CreatedAt)
}

// ListByUser returns the newest items first.
func (r *HistoryRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryItem, error) {
	if limit <= 0 || limit > maxHistoryPage {
		limit = maxHistoryPage
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListHistoryByUser, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.HistoryItem, 0)
	for rows.Next() {
		item := domain.HistoryItem{UserID: userID}
		if err := rows.Scan(&item.ID, &item.JobID, &item.Prompt, &item.AspectRatio, &item.TargetLength, &item.StorageKey, &item.MimeType, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

var _ domain.HistoryRepository = (*HistoryRepositoryPG)(nil)
