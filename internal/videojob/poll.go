package videojob

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// await refreshes job every poll interval until it reports done. It performs
// exactly one refresh per wait and returns immediately for an already-done
// handle.
func (o *Orchestrator) await(ctx context.Context, credential string, job *Job, stage string) (*Job, error) {
	ctx, span := o.tracer.Start(ctx, "videojob.poll", trace.WithAttributes(attribute.String("video.stage", stage)))
	defer span.End()

	started := o.clock.Now()
	polls := 0
	defer func() { span.SetAttributes(attribute.Int("video.polls", polls)) }()

	for !job.Done {
		if o.maxPolls > 0 && polls >= o.maxPolls {
			return nil, &Error{Kind: KindTimeout, Stage: stage, Err: fmt.Errorf("job %s not done after %d polls", job.Name, polls)}
		}
		if o.maxWait > 0 && o.clock.Now().Sub(started) >= o.maxWait {
			return nil, &Error{Kind: KindTimeout, Stage: stage, Err: fmt.Errorf("job %s not done after %s", job.Name, o.maxWait)}
		}
		if err := ctx.Err(); err != nil {
			return nil, classify(stage, err)
		}
		select {
		case <-ctx.Done():
			return nil, classify(stage, ctx.Err())
		case <-o.clock.After(o.interval):
		}

		next, err := o.provider.Refresh(ctx, credential, job)
		if err == nil && next == nil {
			err = errors.New("provider returned no job")
		}
		if err != nil {
			span.RecordError(err)
			return nil, classify(stage, err)
		}
		job = next
		polls++
		o.logger.Debug().
			Str("stage", stage).
			Str("job", job.Name).
			Int("poll", polls).
			Bool("done", job.Done).
			Msg("videojob: refreshed")
	}
	return job, nil
}
