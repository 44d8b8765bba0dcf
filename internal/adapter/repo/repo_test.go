package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"genlux/internal/domain"
	"genlux/internal/sqlinline"
)

type execCall struct {
	query string
	args  []any
}

type stubExecutor struct {
	rows  map[string]stubRow
	tag   string
	err   error
	execs []execCall
	reads []execCall
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{query: query, args: args})
	if s.err != nil {
		return pgconn.CommandTag{}, s.err
	}
	return pgconn.NewCommandTag(s.tag), nil
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.reads = append(s.reads, execCall{query: query, args: args})
	if row, ok := s.rows[query]; ok {
		return row
	}
	return stubRow{err: pgx.ErrNoRows}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

// stubRow assigns values positionally to the scan destinations.
type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("scan arity mismatch")
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case **string:
			if v == nil {
				*d = nil
			} else {
				s := v.(string)
				*d = &s
			}
		case *bool:
			*d = v.(bool)
		case *int:
			*d = v.(int)
		case *int64:
			*d = v.(int64)
		case *time.Time:
			*d = v.(time.Time)
		case **time.Time:
			if v != nil {
				t := v.(time.Time)
				*d = &t
			}
		case *domain.UserPlan:
			*d = domain.UserPlan(v.(string))
		case *domain.JobStatus:
			*d = domain.JobStatus(v.(string))
		default:
			return errors.New("unsupported scan destination")
		}
	}
	return nil
}

func enqueueRow(jobID any, dedup bool, plan string, available int) stubRow {
	return stubRow{values: []any{jobID, dedup, plan, available}}
}

func TestJobRepositoryEnqueue(t *testing.T) {
	tests := []struct {
		name    string
		row     stubRow
		wantErr error
		wantID  string
	}{
		{name: "inserted", row: enqueueRow("job-1", false, "free", 2), wantID: "job-1"},
		{name: "deduplicated", row: enqueueRow("job-0", true, "free", 0), wantID: "job-0"},
		{name: "unknown user", row: enqueueRow(nil, false, "", 0), wantErr: domain.ErrNotFound},
		{name: "free uses exhausted", row: enqueueRow(nil, false, "free", 0), wantErr: domain.ErrUpgradeRequired},
		{name: "concurrent insert", row: enqueueRow(nil, false, "pro", 0), wantErr: domain.ErrDuplicateOperation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exec := &stubExecutor{rows: map[string]stubRow{sqlinline.QEnqueueVideoJob: tc.row}}
			res, err := NewJobRepository(exec).Enqueue(context.Background(), domain.NewVideoJob{
				UserID:       "user-1",
				Prompt:       "a cat",
				AspectRatio:  "16:9",
				TargetLength: "short",
				DedupeKey:    "abc",
			})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Enqueue error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Enqueue error: %v", err)
			}
			if res.JobID != tc.wantID {
				t.Fatalf("JobID = %q, want %q", res.JobID, tc.wantID)
			}
			if got := exec.reads[0].args; len(got) != 5 || got[4] != "abc" {
				t.Fatalf("unexpected args: %v", got)
			}
		})
	}
}

func TestJobRepositoryClaimEmptyQueue(t *testing.T) {
	job, err := NewJobRepository(&stubExecutor{}).Claim(context.Background())
	if err != nil || job != nil {
		t.Fatalf("Claim = %v, %v; want nil, nil", job, err)
	}
}

func TestJobRepositoryClaim(t *testing.T) {
	exec := &stubExecutor{rows: map[string]stubRow{
		sqlinline.QClaimVideoJob: {values: []any{"job-1", "user-1", "a cat", "9:16", "long", "key", 1}},
	}}
	job, err := NewJobRepository(exec).Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim error: %v", err)
	}
	if job.ID != "job-1" || job.TargetLength != "long" || job.Attempts != 1 {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestJobRepositoryGetForUserNotFound(t *testing.T) {
	_, err := NewJobRepository(&stubExecutor{}).GetForUser(context.Background(), "job-1", "user-1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobRepositoryRequeueStale(t *testing.T) {
	exec := &stubExecutor{tag: "UPDATE 3"}
	n, err := NewJobRepository(exec).RequeueStale(context.Background(), 600)
	if err != nil {
		t.Fatalf("RequeueStale error: %v", err)
	}
	if n != 3 {
		t.Fatalf("requeued = %d, want 3", n)
	}
	if exec.execs[0].query != sqlinline.QRequeueStaleVideoJobs || exec.execs[0].args[0] != 600 {
		t.Fatalf("unexpected exec: %+v", exec.execs[0])
	}
}

func TestJobRepositoryProgressAndFail(t *testing.T) {
	exec := &stubExecutor{tag: "UPDATE 1"}
	repo := NewJobRepository(exec)
	p := domain.JobProgress{Stage: "extension 1", Step: 2, Total: 3, Message: "extending"}
	if err := repo.UpdateProgress(context.Background(), "job-1", p); err != nil {
		t.Fatalf("UpdateProgress error: %v", err)
	}
	if err := repo.Fail(context.Background(), "job-1", "timeout", "gave up"); err != nil {
		t.Fatalf("Fail error: %v", err)
	}
	if len(exec.execs) != 2 {
		t.Fatalf("execs = %d", len(exec.execs))
	}
	if args := exec.execs[0].args; args[1] != "extension 1" || args[2] != 2 || args[3] != 3 {
		t.Fatalf("unexpected progress args: %v", args)
	}
	if args := exec.execs[1].args; args[1] != "timeout" || args[2] != "gave up" {
		t.Fatalf("unexpected fail args: %v", args)
	}
}

func userRow(plan string, free int) stubRow {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return stubRow{values: []any{"user-1", "sub-1", "a@example.com", "Ana", "", "id", plan, free, now, now}}
}

func TestUserRepositoryUpsertGoogleUser(t *testing.T) {
	exec := &stubExecutor{rows: map[string]stubRow{sqlinline.QUpsertGoogleUser: userRow("free", 3)}}
	user, err := NewUserRepository(exec).UpsertGoogleUser(context.Background(), &domain.User{
		GoogleSub: "sub-1",
		Email:     "a@example.com",
		Name:      "Ana",
		Locale:    "id",
	}, 3)
	if err != nil {
		t.Fatalf("UpsertGoogleUser error: %v", err)
	}
	if user.ID != "user-1" || user.Plan != domain.UserPlanFree || user.FreeUsesRemaining != 3 {
		t.Fatalf("unexpected user: %+v", user)
	}
	if args := exec.reads[0].args; args[5] != 3 {
		t.Fatalf("free uses arg = %v", args[5])
	}
}

func TestUserRepositoryGetByIDNotFound(t *testing.T) {
	_, err := NewUserRepository(&stubExecutor{}).GetByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepositoryConsumeFreeUse(t *testing.T) {
	exec := &stubExecutor{rows: map[string]stubRow{sqlinline.QConsumeFreeUse: {values: []any{1}}}}
	left, err := NewUserRepository(exec).ConsumeFreeUse(context.Background(), "user-1")
	if err != nil || left != 1 {
		t.Fatalf("ConsumeFreeUse = %d, %v", left, err)
	}
	left, err = NewUserRepository(&stubExecutor{}).ConsumeFreeUse(context.Background(), "pro-user")
	if err != nil || left != -1 {
		t.Fatalf("ConsumeFreeUse for pro = %d, %v", left, err)
	}
}

func TestUsageRepositoryRecord(t *testing.T) {
	exec := &stubExecutor{tag: "INSERT 0 1"}
	err := NewUsageRepository(exec).Record(context.Background(), domain.UsageEvent{
		UserID:     "user-1",
		Type:       domain.UsageVideoQueued,
		Success:    true,
		Properties: map[string]any{"length": "short"},
	})
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	args := exec.execs[0].args
	if jobID, ok := args[1].(*string); !ok || jobID != nil {
		t.Fatalf("expected nil job id, got %v", args[1])
	}
	if raw, ok := args[6].([]byte); !ok || string(raw) != `{"length":"short"}` {
		t.Fatalf("properties = %v", args[6])
	}
}
