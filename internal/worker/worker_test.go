package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"genlux/internal/domain"
	"genlux/internal/infra/credentials"
	"genlux/internal/progress"
	"genlux/internal/videojob"
)

type fakeJobs struct {
	mu        sync.Mutex
	queue     []*domain.ClaimedJob
	claimErr  error
	progress  []domain.JobProgress
	completed map[string]domain.JobResult
	failed    map[string]string
	requeued  int
	// completeErrs are returned by successive Complete calls.
	completeErrs []error
	completes    int
}

func newFakeJobs(jobs ...*domain.ClaimedJob) *fakeJobs {
	return &fakeJobs{queue: jobs, completed: map[string]domain.JobResult{}, failed: map[string]string{}}
}

func (f *fakeJobs) Enqueue(ctx context.Context, job domain.NewVideoJob) (*domain.EnqueueResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeJobs) Claim(ctx context.Context) (*domain.ClaimedJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.queue) == 0 {
		return nil, nil
	}
	job := f.queue[0]
	f.queue = f.queue[1:]
	return job, nil
}

func (f *fakeJobs) UpdateProgress(ctx context.Context, jobID string, p domain.JobProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, p)
	return nil
}

func (f *fakeJobs) Complete(ctx context.Context, jobID string, res domain.JobResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
	if len(f.completeErrs) > 0 {
		err := f.completeErrs[0]
		f.completeErrs = f.completeErrs[1:]
		if err != nil {
			return err
		}
	}
	f.completed[jobID] = res
	return nil
}

func (f *fakeJobs) Fail(ctx context.Context, jobID, kind, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[jobID] = kind
	return nil
}

func (f *fakeJobs) GetForUser(ctx context.Context, jobID, userID string) (*domain.VideoJob, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeJobs) RequeueStale(ctx context.Context, olderThanSeconds int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued++
	return 0, nil
}

type fakeUsers struct {
	mu       sync.Mutex
	consumed []string
}

func (f *fakeUsers) UpsertGoogleUser(ctx context.Context, user *domain.User, freeUses int) (*domain.User, error) {
	return user, nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeUsers) ConsumeFreeUse(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed = append(f.consumed, userID)
	return 2, nil
}

func (f *fakeUsers) SetPlan(ctx context.Context, userID string, plan domain.UserPlan, freeUses *int) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

type fakeHistory struct {
	mu    sync.Mutex
	items []domain.HistoryItem
}

func (f *fakeHistory) Append(ctx context.Context, item *domain.HistoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = "hist-1"
	f.items = append(f.items, *item)
	return nil
}

func (f *fakeHistory) ListByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryItem, error) {
	return nil, nil
}

type fakeUsage struct {
	mu     sync.Mutex
	events []domain.UsageEvent
}

func (f *fakeUsage) Record(ctx context.Context, e domain.UsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

type fakeGenerator struct {
	asset  *videojob.Asset
	err    error
	scopes []string
	users  []string
	reqs   []videojob.Request
}

func (g *fakeGenerator) Generate(ctx context.Context, scope string, req videojob.Request, onProgress videojob.ProgressFunc) (*videojob.Asset, bool, error) {
	g.scopes = append(g.scopes, scope)
	g.users = append(g.users, credentials.UserFromContext(ctx))
	g.reqs = append(g.reqs, req)
	onProgress(videojob.Progress{Stage: videojob.StageStarting, Message: "Starting video generation..."})
	onProgress(videojob.Progress{Stage: videojob.StageFetching, Message: "Fetching final video..."})
	if g.err != nil {
		return nil, false, g.err
	}
	return g.asset, false, nil
}

type memoryBlobs struct {
	files map[string][]byte
	err   error
}

func (m *memoryBlobs) Write(ctx context.Context, key string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.files[key] = data
	return key, nil
}

type harness struct {
	jobs    *fakeJobs
	users   *fakeUsers
	history *fakeHistory
	usage   *fakeUsage
	gen     *fakeGenerator
	blobs   *memoryBlobs
	bus     *progress.MemoryBus
	pool    *Pool
}

func newHarness(t *testing.T, gen *fakeGenerator, jobs ...*domain.ClaimedJob) *harness {
	t.Helper()
	h := &harness{
		jobs:    newFakeJobs(jobs...),
		users:   &fakeUsers{},
		history: &fakeHistory{},
		usage:   &fakeUsage{},
		gen:     gen,
		blobs:   &memoryBlobs{files: map[string][]byte{}},
		bus:     progress.NewMemoryBus(),
	}
	pool, err := New(Options{
		Jobs:      h.jobs,
		Users:     h.users,
		History:   h.history,
		Usage:     h.usage,
		Generator: h.gen,
		Store:     h.blobs,
		Bus:       h.bus,
		IdleDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	pool.completeBackoff = time.Millisecond
	h.pool = pool
	return h
}

func sampleJob() *domain.ClaimedJob {
	return &domain.ClaimedJob{
		ID:           "job-1",
		UserID:       "user-1",
		Prompt:       "a lighthouse at dusk",
		AspectRatio:  "9:16",
		TargetLength: "medium",
		DedupeKey:    "k",
		Attempts:     1,
	}
}

func TestRunOnceSuccess(t *testing.T) {
	gen := &fakeGenerator{asset: &videojob.Asset{Data: []byte("mp4"), MimeType: "video/mp4", Extensions: 1}}
	h := newHarness(t, gen, sampleJob())

	processed, err := h.pool.RunOnce(context.Background())
	if err != nil || !processed {
		t.Fatalf("RunOnce = %v, %v", processed, err)
	}

	if len(gen.reqs) != 1 || gen.reqs[0].Length != videojob.LengthMedium || gen.reqs[0].AspectRatio != videojob.AspectPortrait {
		t.Fatalf("unexpected request: %+v", gen.reqs)
	}
	if gen.scopes[0] != "user-1" || gen.users[0] != "user-1" {
		t.Fatalf("scope/user = %q/%q", gen.scopes[0], gen.users[0])
	}
	if len(h.jobs.progress) != 2 || h.jobs.progress[0].Stage != string(videojob.StageStarting) {
		t.Fatalf("unexpected progress: %+v", h.jobs.progress)
	}

	res, ok := h.jobs.completed["job-1"]
	if !ok {
		t.Fatal("job not completed")
	}
	if res.StorageKey != "videos/user-1/job-1.mp4" || res.Bytes != 3 || res.MimeType != "video/mp4" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if string(h.blobs.files[res.StorageKey]) != "mp4" {
		t.Fatal("video bytes not stored")
	}
	if len(h.history.items) != 1 || h.history.items[0].StorageKey != res.StorageKey {
		t.Fatalf("unexpected history: %+v", h.history.items)
	}
	if len(h.users.consumed) != 1 {
		t.Fatalf("free uses consumed = %d", len(h.users.consumed))
	}
	if len(h.usage.events) != 1 || h.usage.events[0].Type != domain.UsageVideoGenerated || !h.usage.events[0].Success {
		t.Fatalf("unexpected usage: %+v", h.usage.events)
	}

	last, _ := h.bus.Last(context.Background(), "job-1")
	if last == nil || last.Status != domain.JobStatusSucceeded {
		t.Fatalf("last event = %+v", last)
	}
}

func TestRunOnceRecordsFailureKind(t *testing.T) {
	gen := &fakeGenerator{err: &videojob.Error{Kind: videojob.KindCredentialInvalid, Stage: "initial"}}
	h := newHarness(t, gen, sampleJob())

	if _, err := h.pool.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if got := h.jobs.failed["job-1"]; got != string(videojob.KindCredentialInvalid) {
		t.Fatalf("failed kind = %q", got)
	}
	if len(h.jobs.completed) != 0 || len(h.users.consumed) != 0 || len(h.history.items) != 0 {
		t.Fatal("failed job must not complete, consume a use or append history")
	}
	last, _ := h.bus.Last(context.Background(), "job-1")
	if last == nil || last.Status != domain.JobStatusFailed || last.ErrorKind != "credential_invalid" {
		t.Fatalf("last event = %+v", last)
	}
	if len(h.usage.events) != 1 || h.usage.events[0].Type != domain.UsageVideoFailed {
		t.Fatalf("unexpected usage: %+v", h.usage.events)
	}
}

func TestRunOnceRejectsInvalidJob(t *testing.T) {
	job := sampleJob()
	job.TargetLength = "epic"
	gen := &fakeGenerator{}
	h := newHarness(t, gen, job)

	if _, err := h.pool.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if len(gen.reqs) != 0 {
		t.Fatal("generator must not run for an invalid job")
	}
	if h.jobs.failed["job-1"] != string(videojob.KindUnclassified) {
		t.Fatalf("failed = %v", h.jobs.failed)
	}
}

func TestRunOnceStoreFailure(t *testing.T) {
	gen := &fakeGenerator{asset: &videojob.Asset{Data: []byte("mp4"), MimeType: "video/mp4"}}
	h := newHarness(t, gen, sampleJob())
	h.blobs.err = errors.New("disk full")

	if _, err := h.pool.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if _, ok := h.jobs.failed["job-1"]; !ok {
		t.Fatal("expected job to fail")
	}
}

func TestRunOnceRetriesComplete(t *testing.T) {
	gen := &fakeGenerator{asset: &videojob.Asset{Data: []byte("mp4"), MimeType: "video/mp4"}}
	h := newHarness(t, gen, sampleJob())
	h.jobs.completeErrs = []error{errors.New("connection reset")}

	if _, err := h.pool.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if h.jobs.completes != 2 {
		t.Fatalf("complete calls = %d, want 2", h.jobs.completes)
	}
	if _, ok := h.jobs.completed["job-1"]; !ok || len(h.jobs.failed) != 0 {
		t.Fatalf("completed = %v failed = %v", h.jobs.completed, h.jobs.failed)
	}
}

func TestRunOnceCompleteFailureFailsJob(t *testing.T) {
	gen := &fakeGenerator{asset: &videojob.Asset{Data: []byte("mp4"), MimeType: "video/mp4"}}
	h := newHarness(t, gen, sampleJob())
	down := errors.New("database unavailable")
	h.jobs.completeErrs = []error{down, down, down}

	if _, err := h.pool.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if h.jobs.completes != completeAttempts {
		t.Fatalf("complete calls = %d, want %d", h.jobs.completes, completeAttempts)
	}
	if got := h.jobs.failed["job-1"]; got != string(videojob.KindUnclassified) {
		t.Fatalf("failed kind = %q", got)
	}
	if len(h.history.items) != 0 || len(h.users.consumed) != 0 {
		t.Fatal("unrecorded job must not append history or consume a use")
	}
	last, _ := h.bus.Last(context.Background(), "job-1")
	if last == nil || last.Status != domain.JobStatusFailed {
		t.Fatalf("last event = %+v", last)
	}
}

func TestRunOnceEmptyQueue(t *testing.T) {
	h := newHarness(t, &fakeGenerator{})
	processed, err := h.pool.RunOnce(context.Background())
	if err != nil || processed {
		t.Fatalf("RunOnce = %v, %v", processed, err)
	}
}

func TestRunOnceInterruptedLeavesJobRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &fakeGenerator{err: &videojob.Error{Kind: videojob.KindCanceled, Stage: "initial", Err: context.Canceled}}
	h := newHarness(t, gen, sampleJob())

	if _, err := h.pool.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if len(h.jobs.failed) != 0 {
		t.Fatalf("interrupted job must stay claimable, got failed %v", h.jobs.failed)
	}
}

func TestRunDrainsQueueAndStops(t *testing.T) {
	gen := &fakeGenerator{asset: &videojob.Asset{Data: []byte("mp4"), MimeType: "video/mp4"}}
	second := sampleJob()
	second.ID = "job-2"
	h := newHarness(t, gen, sampleJob(), second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.pool.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		h.jobs.mu.Lock()
		n := len(h.jobs.completed)
		h.jobs.mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("jobs not processed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v", err)
	}
	if h.jobs.requeued != 1 {
		t.Fatalf("requeue calls = %d", h.jobs.requeued)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error")
	}
}
