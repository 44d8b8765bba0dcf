package domain

import "context"

// UserRepository defines access methods for users.
type UserRepository interface {
	UpsertGoogleUser(ctx context.Context, user *User, freeUses int) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ConsumeFreeUse(ctx context.Context, userID string) (int, error)
	SetPlan(ctx context.Context, userID string, plan UserPlan, freeUses *int) (*User, error)
}

// JobRepository defines persistence for video jobs.
type JobRepository interface {
	Enqueue(ctx context.Context, job NewVideoJob) (*EnqueueResult, error)
	Claim(ctx context.Context) (*ClaimedJob, error)
	UpdateProgress(ctx context.Context, jobID string, progress JobProgress) error
	Complete(ctx context.Context, jobID string, result JobResult) error
	Fail(ctx context.Context, jobID, kind, message string) error
	GetForUser(ctx context.Context, jobID, userID string) (*VideoJob, error)
	RequeueStale(ctx context.Context, olderThanSeconds int) (int64, error)
}

// HistoryRepository stores finished generations.
type HistoryRepository interface {
	Append(ctx context.Context, item *HistoryItem) error
	ListByUser(ctx context.Context, userID string, limit int) ([]HistoryItem, error)
}

// UsageRecorder writes usage events.
type UsageRecorder interface {
	Record(ctx context.Context, event UsageEvent) error
}
