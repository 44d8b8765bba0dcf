// Package worker runs queued video jobs through the generation pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"genlux/internal/domain"
	"genlux/internal/infra"
	"genlux/internal/infra/credentials"
	"genlux/internal/progress"
	"genlux/internal/storage"
	"genlux/internal/videojob"
)

const (
	defaultIdleDelay  = 2 * time.Second
	defaultStaleAfter = 30 * time.Minute

	// completeAttempts bounds how often a finished job's result is written
	// before the job is failed instead.
	completeAttempts       = 3
	defaultCompleteBackoff = 500 * time.Millisecond
)

// Generator is satisfied by *videojob.Registry.
type Generator interface {
	Generate(ctx context.Context, scope string, req videojob.Request, onProgress videojob.ProgressFunc) (*videojob.Asset, bool, error)
}

// BlobWriter stores finished videos; *storage.FileStore implements it.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Options wires a Pool.
type Options struct {
	Jobs      domain.JobRepository
	Users     domain.UserRepository
	History   domain.HistoryRepository
	Usage     domain.UsageRecorder
	Generator Generator
	Store     BlobWriter
	Bus       progress.Bus
	// Concurrency is the number of claim loops. Defaults to 1.
	Concurrency int
	// IdleDelay is the pause after an empty claim.
	IdleDelay time.Duration
	// StaleAfter is how long a RUNNING job may go without updates before
	// Run requeues it at startup.
	StaleAfter time.Duration
	Logger     *infra.Logger
	Now        func() time.Time
}

// Pool claims jobs from the database and processes them.
type Pool struct {
	jobs        domain.JobRepository
	users       domain.UserRepository
	history     domain.HistoryRepository
	usage       domain.UsageRecorder
	gen         Generator
	store       BlobWriter
	bus         progress.Bus
	concurrency int
	idle        time.Duration
	staleAfter  time.Duration
	logger      *infra.Logger
	now         func() time.Time
	// completeBackoff is the pause between Complete attempts.
	completeBackoff time.Duration
}

// New validates opts.
func New(opts Options) (*Pool, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("worker: job repository is required")
	case opts.Users == nil:
		return nil, errors.New("worker: user repository is required")
	case opts.History == nil:
		return nil, errors.New("worker: history repository is required")
	case opts.Generator == nil:
		return nil, errors.New("worker: generator is required")
	case opts.Store == nil:
		return nil, errors.New("worker: blob store is required")
	}
	p := &Pool{
		jobs:        opts.Jobs,
		users:       opts.Users,
		history:     opts.History,
		usage:       opts.Usage,
		gen:         opts.Generator,
		store:       opts.Store,
		bus:         opts.Bus,
		concurrency: opts.Concurrency,
		idle:        opts.IdleDelay,
		staleAfter:  opts.StaleAfter,
		logger:      opts.Logger,
		now:         opts.Now,

		completeBackoff: defaultCompleteBackoff,
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	if p.idle <= 0 {
		p.idle = defaultIdleDelay
	}
	if p.staleAfter <= 0 {
		p.staleAfter = defaultStaleAfter
	}
	if p.bus == nil {
		p.bus = progress.NewMemoryBus()
	}
	if p.logger == nil {
		p.logger = infra.DiscardLogger()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Run requeues stale jobs, then runs the claim loops until ctx ends.
func (p *Pool) Run(ctx context.Context) error {
	requeued, err := p.jobs.RequeueStale(ctx, int(p.staleAfter.Seconds()))
	if err != nil {
		p.logger.Error().Err(err).Msg("worker: requeue stale jobs failed")
	} else if requeued > 0 {
		p.logger.Warn().Int64("count", requeued).Msg("worker: requeued stale jobs")
	}

	p.logger.Info().Int("concurrency", p.concurrency).Msg("worker: started")
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		slot := i
		g.Go(func() error {
			return p.loop(ctx, slot)
		})
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context, slot int) error {
	logger := p.logger.With().Int("slot", slot).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := p.RunOnce(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("worker: failed to claim job")
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.idle):
		}
	}
}

// RunOnce claims and processes a single job. It reports whether a job was
// claimed.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.jobs.Claim(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	p.process(ctx, job)
	return true, nil
}

func (p *Pool) process(ctx context.Context, job *domain.ClaimedJob) {
	logger := p.logger.With().Str("job_id", job.ID).Str("user_id", job.UserID).Logger()
	logger.Info().Str("length", job.TargetLength).Int("attempt", job.Attempts).Msg("worker: picked job")
	started := p.now()

	req, err := requestFor(job)
	if err != nil {
		p.fail(ctx, job, string(videojob.KindUnclassified), err, started)
		return
	}

	onProgress := func(ev videojob.Progress) {
		jp := domain.JobProgress{Stage: string(ev.Stage), Step: ev.Step, Total: ev.Total, Message: ev.Message}
		if err := p.jobs.UpdateProgress(ctx, job.ID, jp); err != nil {
			logger.Warn().Err(err).Str("stage", jp.Stage).Msg("worker: persist progress failed")
		}
		p.publish(ctx, progress.Event{JobID: job.ID, Status: domain.JobStatusRunning, Progress: jp})
	}

	genCtx := credentials.WithUser(ctx, job.UserID)
	asset, shared, err := p.gen.Generate(genCtx, job.UserID, req, onProgress)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown: leave the job RUNNING so the next start requeues it.
			logger.Warn().Err(err).Msg("worker: job interrupted")
			return
		}
		p.fail(ctx, job, string(videojob.KindOf(err)), err, started)
		return
	}

	// Generation succeeded; finish bookkeeping even if shutdown begins now.
	ctx = context.WithoutCancel(ctx)

	key, err := p.store.Write(ctx, storage.VideoKey(job.UserID, job.ID, asset.MimeType), asset.Data)
	if err != nil {
		p.fail(ctx, job, string(videojob.KindUnclassified), fmt.Errorf("store video: %w", err), started)
		return
	}

	result := domain.JobResult{StorageKey: key, MimeType: asset.MimeType, Bytes: int64(len(asset.Data)), Shared: shared}
	if err := p.complete(ctx, job.ID, result); err != nil {
		// A RUNNING job would be requeued and generated again.
		p.fail(ctx, job, string(videojob.KindUnclassified), fmt.Errorf("record result: %w", err), started)
		return
	}

	if err := p.history.Append(ctx, &domain.HistoryItem{
		UserID:       job.UserID,
		JobID:        job.ID,
		Prompt:       job.Prompt,
		AspectRatio:  job.AspectRatio,
		TargetLength: job.TargetLength,
		StorageKey:   key,
		MimeType:     asset.MimeType,
	}); err != nil {
		logger.Error().Err(err).Msg("worker: append history failed")
	}

	remaining, err := p.users.ConsumeFreeUse(ctx, job.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("worker: consume free use failed")
	}

	p.publish(ctx, progress.Event{
		JobID:    job.ID,
		Status:   domain.JobStatusSucceeded,
		Progress: domain.JobProgress{Stage: "done", Message: "Video ready."},
	})
	p.record(ctx, domain.UsageEvent{
		UserID:    job.UserID,
		JobID:     job.ID,
		Type:      domain.UsageVideoGenerated,
		Success:   true,
		LatencyMS: int(p.now().Sub(started).Milliseconds()),
		Properties: map[string]any{
			"length":         job.TargetLength,
			"aspect_ratio":   job.AspectRatio,
			"extensions":     asset.Extensions,
			"bytes":          len(asset.Data),
			"shared":         shared,
			"free_uses_left": remaining,
			"attempt":        job.Attempts,
		},
	})
	logger.Info().Str("storage_key", key).Bool("shared", shared).Msg("worker: job succeeded")
}

func (p *Pool) complete(ctx context.Context, jobID string, result domain.JobResult) error {
	var err error
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		if err = p.jobs.Complete(ctx, jobID, result); err == nil {
			return nil
		}
		p.logger.Warn().Err(err).Str("job_id", jobID).Int("attempt", attempt).Msg("worker: complete job failed")
		if attempt < completeAttempts {
			time.Sleep(p.completeBackoff * time.Duration(attempt))
		}
	}
	return err
}

func (p *Pool) fail(ctx context.Context, job *domain.ClaimedJob, kind string, cause error, started time.Time) {
	ctx = context.WithoutCancel(ctx)
	p.logger.Error().Err(cause).Str("job_id", job.ID).Str("kind", kind).Msg("worker: job failed")
	if err := p.jobs.Fail(ctx, job.ID, kind, cause.Error()); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: mark failed")
	}
	p.publish(ctx, progress.Event{
		JobID:     job.ID,
		Status:    domain.JobStatusFailed,
		ErrorKind: kind,
		Error:     cause.Error(),
	})
	p.record(ctx, domain.UsageEvent{
		UserID:     job.UserID,
		JobID:      job.ID,
		Type:       domain.UsageVideoFailed,
		LatencyMS:  int(p.now().Sub(started).Milliseconds()),
		Properties: map[string]any{"kind": kind, "length": job.TargetLength},
	})
}

func (p *Pool) publish(ctx context.Context, evt progress.Event) {
	if evt.At.IsZero() {
		evt.At = p.now().UTC()
	}
	if err := p.bus.Publish(ctx, evt); err != nil {
		p.logger.Warn().Err(err).Str("job_id", evt.JobID).Msg("worker: publish progress failed")
	}
}

func (p *Pool) record(ctx context.Context, e domain.UsageEvent) {
	if p.usage == nil {
		return
	}
	if err := p.usage.Record(ctx, e); err != nil {
		p.logger.Warn().Err(err).Str("job_id", e.JobID).Msg("worker: record usage failed")
	}
}

func requestFor(job *domain.ClaimedJob) (videojob.Request, error) {
	aspect, err := videojob.ParseAspectRatio(job.AspectRatio)
	if err != nil {
		return videojob.Request{}, err
	}
	length, err := videojob.ParseTargetLength(job.TargetLength)
	if err != nil {
		return videojob.Request{}, err
	}
	return videojob.Request{Prompt: job.Prompt, AspectRatio: aspect, Length: length}, nil
}
