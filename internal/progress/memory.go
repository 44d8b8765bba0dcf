package progress

import (
	"context"
	"sync"
	"time"
)

// finishedRetention is how long MemoryBus keeps the terminal event of a job
// for late readers.
const finishedRetention = 10 * time.Minute

// MemoryBus is an in-process Bus. It is used when no Redis URL is
// configured and in tests.
type MemoryBus struct {
	mu       sync.Mutex
	last     map[string]Event
	finished []finishedJob
	subs     map[string]map[chan Event]struct{}
	now      func() time.Time
}

type finishedJob struct {
	jobID string
	at    time.Time
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		last: make(map[string]Event),
		subs: make(map[string]map[chan Event]struct{}),
		now:  time.Now,
	}
}

// Publish never blocks: a subscriber that is not keeping up misses events
// and can fall back to Last.
func (b *MemoryBus) Publish(ctx context.Context, evt Event) error {
	now := b.now().UTC()
	if evt.At.IsZero() {
		evt.At = now
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictFinished(now)
	b.last[evt.JobID] = evt
	if evt.Terminal() {
		b.finished = append(b.finished, finishedJob{jobID: evt.JobID, at: now})
	}
	for ch := range b.subs[evt.JobID] {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// evictFinished drops terminal events older than finishedRetention. b.mu is
// held.
func (b *MemoryBus) evictFinished(now time.Time) {
	n := 0
	for n < len(b.finished) && now.Sub(b.finished[n].at) >= finishedRetention {
		f := b.finished[n]
		if evt, ok := b.last[f.jobID]; ok && evt.Terminal() {
			delete(b.last, f.jobID)
		}
		n++
	}
	if n > 0 {
		b.finished = append(b.finished[:0], b.finished[n:]...)
	}
}

func (b *MemoryBus) Last(ctx context.Context, jobID string) (*Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	evt, ok := b.last[jobID]
	if !ok {
		return nil, nil
	}
	return &evt, nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, jobID string) (<-chan Event, func(), error) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan Event]struct{})
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.subs[jobID], ch)
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}

var _ Bus = (*MemoryBus)(nil)
