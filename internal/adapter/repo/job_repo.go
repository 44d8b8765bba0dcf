package repo

import (
	"context"
	"fmt"

	"genlux/internal/domain"
	"genlux/internal/infra"
	"genlux/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Enqueue inserts a job or returns the identical active one. A free account
// without remaining uses gets domain.ErrUpgradeRequired.
func (r *JobRepositoryPG) Enqueue(ctx context.Context, job domain.NewVideoJob) (*domain.EnqueueResult, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QEnqueueVideoJob,
		job.UserID,
		job.Prompt,
		job.AspectRatio,
		job.TargetLength,
		job.DedupeKey,
	)
	var (
		jobID     *string
		dedup     bool
		plan      string
		available int
	)
	if err := row.Scan(&jobID, &dedup, &plan, &available); err != nil {
		return nil, fmt.Errorf("enqueue video job: %w", err)
	}
	if plan == "" {
		return nil, domain.ErrNotFound
	}
	if jobID == nil {
		if domain.UserPlan(plan) == domain.UserPlanPro || available > 0 {
			// An identical job was inserted concurrently.
			return nil, domain.ErrDuplicateOperation
		}
		return nil, domain.ErrUpgradeRequired
	}
	return &domain.EnqueueResult{
		JobID:        *jobID,
		Deduplicated: dedup,
		Plan:         domain.UserPlan(plan),
		Available:    available,
	}, nil
}

// Claim takes the oldest queued job. It returns nil, nil when the queue is
// empty.
func (r *JobRepositoryPG) Claim(ctx context.Context) (*domain.ClaimedJob, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QClaimVideoJob)
	var j domain.ClaimedJob
	if err := row.Scan(&j.ID, &j.UserID, &j.Prompt, &j.AspectRatio, &j.TargetLength, &j.DedupeKey, &j.Attempts); err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &j, nil
}

// UpdateProgress records the latest event of a running job.
func (r *JobRepositoryPG) UpdateProgress(ctx context.Context, jobID string, p domain.JobProgress) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpdateVideoJobProgress, jobID, p.Stage, p.Step, p.Total, p.Message)
	return err
}

// Complete marks a job succeeded.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID string, res domain.JobResult) error {
	_, err := r.sql.Exec(ctx, sqlinline.QCompleteVideoJob, jobID, res.StorageKey, res.MimeType, res.Bytes, res.Shared)
	return err
}

// Fail marks a job failed with an error kind clients can act on.
func (r *JobRepositoryPG) Fail(ctx context.Context, jobID, kind, message string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QFailVideoJob, jobID, kind, message)
	return err
}

// GetForUser fetches a job owned by userID.
func (r *JobRepositoryPG) GetForUser(ctx context.Context, jobID, userID string) (*domain.VideoJob, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectVideoJobForUser, jobID, userID)
	var job domain.VideoJob
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Prompt,
		&job.AspectRatio,
		&job.TargetLength,
		&job.Status,
		&job.Progress.Stage,
		&job.Progress.Step,
		&job.Progress.Total,
		&job.Progress.Message,
		&job.ErrorKind,
		&job.ErrorMessage,
		&job.StorageKey,
		&job.MimeType,
		&job.Bytes,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.FinishedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// RequeueStale returns running jobs untouched for olderThanSeconds to the
// queue, e.g. after a worker crash.
func (r *JobRepositoryPG) RequeueStale(ctx context.Context, olderThanSeconds int) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QRequeueStaleVideoJobs, olderThanSeconds)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
