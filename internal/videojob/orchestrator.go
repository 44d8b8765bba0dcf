package videojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"genlux/internal/infra"
)

const (
	// DefaultPollInterval is the constant wait between status refreshes.
	DefaultPollInterval = 10 * time.Second

	stageCredential   = "credential"
	stageInitial      = "initial"
	stageDownloadLink = "download link"
	stageDownload     = "download"

	defaultMimeType = "video/mp4"
	tracerName      = "genlux/internal/videojob"
)

// CredentialProvider supplies the key used for every remote call of one
// Generate invocation. An empty credential means none is selected.
type CredentialProvider interface {
	Credential(ctx context.Context) (string, error)
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) Credential(ctx context.Context) (string, error) { return f(ctx) }

// Provider is the remote video-generation boundary.
type Provider interface {
	Submit(ctx context.Context, credential string, req SubmitRequest) (*Job, error)
	Refresh(ctx context.Context, credential string, job *Job) (*Job, error)
	// Download fetches the bytes behind locator. Non-success responses are
	// reported as *TransportError.
	Download(ctx context.Context, credential, locator string) ([]byte, string, error)
}

// Options configures an Orchestrator.
type Options struct {
	Provider    Provider
	Credentials CredentialProvider
	Clock       Clock
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// MaxWait bounds the time spent polling a single job; zero disables it.
	MaxWait time.Duration
	// MaxPolls bounds the refreshes of a single job; zero disables it.
	MaxPolls int
	Logger   *infra.Logger
	Tracer   trace.Tracer
}

// Orchestrator drives one prompt through submission, polling, the extension
// chain and the final download. It keeps no state between calls.
type Orchestrator struct {
	provider    Provider
	credentials CredentialProvider
	clock       Clock
	interval    time.Duration
	maxWait     time.Duration
	maxPolls    int
	logger      *infra.Logger
	tracer      trace.Tracer
}

// New validates opts and applies defaults.
func New(opts Options) (*Orchestrator, error) {
	if opts.Provider == nil {
		return nil, errors.New("videojob: provider is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("videojob: credential provider is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Orchestrator{
		provider:    opts.Provider,
		credentials: opts.Credentials,
		clock:       clock,
		interval:    interval,
		maxWait:     opts.MaxWait,
		maxPolls:    opts.MaxPolls,
		logger:      logger,
		tracer:      tracer,
	}, nil
}

// Generate runs the full pipeline for req. Every failure is an *Error.
func (o *Orchestrator) Generate(ctx context.Context, req Request, onProgress ProgressFunc) (*Asset, error) {
	ctx, span := o.tracer.Start(ctx, "videojob.Generate", trace.WithAttributes(
		attribute.String("video.aspect_ratio", string(req.AspectRatio)),
		attribute.String("video.length", string(req.Length)),
		attribute.Int("video.extensions", req.Length.Extensions()),
	))
	defer span.End()

	emit := onProgress
	if emit == nil {
		emit = func(Progress) {}
	}

	started := o.clock.Now()
	asset, err := o.run(ctx, req, emit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		o.logger.Warn().
			Err(err).
			Str("kind", string(KindOf(err))).
			Str("length", string(req.Length)).
			Msg("videojob: generation failed")
		return nil, err
	}
	o.logger.Info().
		Int("bytes", len(asset.Data)).
		Int("extensions", asset.Extensions).
		Dur("elapsed", o.clock.Now().Sub(started)).
		Msg("videojob: generation complete")
	return asset, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, emit ProgressFunc) (*Asset, error) {
	credential, err := o.credentials.Credential(ctx)
	if err != nil {
		return nil, classify(stageCredential, err)
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, &Error{Kind: KindCredentialMissing, Stage: stageCredential}
	}

	emit(startingEvent())
	job, err := o.submit(ctx, credential, stageInitial, SubmitRequest{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Resolution:  DefaultResolution,
		Count:       1,
	})
	if err != nil {
		return nil, err
	}

	emit(pollingEvent())
	job, err = o.await(ctx, credential, job, stageInitial)
	if err != nil {
		return nil, err
	}
	video := job.Video
	if video == nil {
		return nil, &Error{Kind: KindGenerationFailed, Stage: stageInitial, Err: jobFailure(job)}
	}

	total := req.Length.Extensions()
	for i := 1; i <= total; i++ {
		stage := fmt.Sprintf("extension %d", i)
		emit(extendingEvent(i, total))
		job, err = o.submit(ctx, credential, stage, SubmitRequest{
			Prompt:      ContinuationPrompt,
			AspectRatio: req.AspectRatio,
			Resolution:  DefaultResolution,
			Count:       1,
			Seed:        video,
		})
		if err != nil {
			return nil, err
		}

		emit(pollingExtensionEvent(i, total))
		job, err = o.await(ctx, credential, job, stage)
		if err != nil {
			return nil, err
		}
		if job.Video == nil {
			return nil, &Error{Kind: KindGenerationFailed, Stage: stage, Err: jobFailure(job)}
		}
		video = job.Video
	}

	if strings.TrimSpace(video.URI) == "" {
		return nil, &Error{Kind: KindGenerationFailed, Stage: stageDownloadLink}
	}

	emit(fetchingEvent())
	data, mime, err := o.download(ctx, credential, video.URI)
	if err != nil {
		return nil, err
	}
	if mime == "" {
		mime = video.MimeType
	}
	if mime == "" {
		mime = defaultMimeType
	}
	return &Asset{
		Data:       data,
		MimeType:   mime,
		SourceURI:  video.URI,
		Extensions: total,
	}, nil
}

func (o *Orchestrator) submit(ctx context.Context, credential, stage string, req SubmitRequest) (*Job, error) {
	ctx, span := o.tracer.Start(ctx, "videojob.submit", trace.WithAttributes(
		attribute.String("video.stage", stage),
		attribute.Bool("video.seeded", req.Seed != nil),
	))
	defer span.End()

	job, err := o.provider.Submit(ctx, credential, req)
	if err == nil && job == nil {
		err = errors.New("provider returned no job")
	}
	if err != nil {
		span.RecordError(err)
		return nil, classify(stage, err)
	}
	o.logger.Debug().Str("stage", stage).Str("job", job.Name).Msg("videojob: submitted")
	return job, nil
}

func (o *Orchestrator) download(ctx context.Context, credential, locator string) ([]byte, string, error) {
	ctx, span := o.tracer.Start(ctx, "videojob.download")
	defer span.End()

	data, mime, err := o.provider.Download(ctx, credential, locator)
	if err != nil {
		span.RecordError(err)
		return nil, "", classify(stageDownload, err)
	}
	span.SetAttributes(attribute.Int("video.bytes", len(data)))
	return data, mime, nil
}

func jobFailure(job *Job) error {
	if job == nil || strings.TrimSpace(job.Failure) == "" {
		return nil
	}
	return errors.New(job.Failure)
}
