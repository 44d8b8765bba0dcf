package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"genlux/internal/infra"
)

const lastEventTTL = 24 * time.Hour

// RedisBus shares events between processes through Redis pub/sub. The last
// event is also stored so late subscribers can catch up.
type RedisBus struct {
	redis  *redis.Client
	logger *infra.Logger
}

func NewRedisBus(client *redis.Client, logger *infra.Logger) *RedisBus {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &RedisBus{redis: client, logger: logger}
}

func channelName(jobID string) string {
	return fmt.Sprintf("progress:%s", jobID)
}

func lastKey(jobID string) string {
	return fmt.Sprintf("progress:last:%s", jobID)
}

func (b *RedisBus) Publish(ctx context.Context, evt Event) error {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	pipe := b.redis.TxPipeline()
	pipe.Set(ctx, lastKey(evt.JobID), data, lastEventTTL)
	pipe.Publish(ctx, channelName(evt.JobID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

func (b *RedisBus) Last(ctx context.Context, jobID string) (*Event, error) {
	data, err := b.redis.Get(ctx, lastKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

func (b *RedisBus) Subscribe(ctx context.Context, jobID string) (<-chan Event, func(), error) {
	sub := b.redis.Subscribe(ctx, channelName(jobID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe progress: %w", err)
	}

	out := make(chan Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					b.logger.Warn().Err(err).Str("job_id", jobID).Msg("progress: dropping malformed event")
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, cancel, nil
}

var _ Bus = (*RedisBus)(nil)
