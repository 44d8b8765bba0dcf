package repo

import (
	"context"
	"encoding/json"

	"genlux/internal/domain"
	"genlux/internal/infra"
	"genlux/internal/sqlinline"
)

// UsageRepositoryPG writes usage_events rows.
type UsageRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewUsageRepository(sql infra.SQLExecutor) *UsageRepositoryPG {
	return &UsageRepositoryPG{sql: sql}
}

func (r *UsageRepositoryPG) Record(ctx context.Context, e domain.UsageEvent) error {
	props := e.Properties
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	var jobID *string
	if e.JobID != "" {
		jobID = &e.JobID
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertUsageEvent, e.UserID, jobID, e.Type, e.Success, e.LatencyMS, e.Country, raw)
	return err
}

var _ domain.UsageRecorder = (*UsageRepositoryPG)(nil)
