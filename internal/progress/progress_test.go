package progress

import (
	"context"
	"strconv"
	"testing"
	"time"

	"genlux/internal/domain"
)

func TestMemoryBusDeliversAndRemembersLast(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	events, cancel, err := bus.Subscribe(ctx, "job-1")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer cancel()

	evt := Event{JobID: "job-1", Status: domain.JobStatusRunning, Progress: domain.JobProgress{Stage: "initial", Step: 1, Total: 2}}
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if err := bus.Publish(ctx, Event{JobID: "job-2", Status: domain.JobStatusRunning}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case got := <-events:
		if got.Progress.Stage != "initial" || got.At.IsZero() {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case got := <-events:
		t.Fatalf("received event for another job: %+v", got)
	default:
	}

	last, err := bus.Last(ctx, "job-1")
	if err != nil || last == nil || last.Progress.Step != 1 {
		t.Fatalf("Last = %+v, %v", last, err)
	}
	if none, _ := bus.Last(ctx, "missing"); none != nil {
		t.Fatalf("expected no event, got %+v", none)
	}
}

func TestMemoryBusCancelClosesChannel(t *testing.T) {
	bus := NewMemoryBus()
	ctx, stop := context.WithCancel(context.Background())
	events, cancel, err := bus.Subscribe(ctx, "job-1")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	stop()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
	cancel()
	if err := bus.Publish(context.Background(), Event{JobID: "job-1"}); err != nil {
		t.Fatalf("Publish after cancel: %v", err)
	}
}

func TestEventTerminal(t *testing.T) {
	if (Event{Status: domain.JobStatusRunning}).Terminal() {
		t.Fatal("running is not terminal")
	}
	if !(Event{Status: domain.JobStatusFailed}).Terminal() {
		t.Fatal("failed is terminal")
	}
}

func TestRedisKeys(t *testing.T) {
	if got := channelName("abc"); got != "progress:abc" {
		t.Fatalf("channelName = %q", got)
	}
	if got := lastKey("abc"); got != "progress:last:abc" {
		t.Fatalf("lastKey = %q", got)
	}
}

func TestMemoryBusEvictsFinishedJobs(t *testing.T) {
	bus := NewMemoryBus()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	bus.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 10000; i++ {
		jobID := "job-" + strconv.Itoa(i)
		if err := bus.Publish(ctx, Event{JobID: jobID, Status: domain.JobStatusSucceeded}); err != nil {
			t.Fatalf("Publish error: %v", err)
		}
	}
	if err := bus.Publish(ctx, Event{JobID: "running", Status: domain.JobStatusRunning}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if last, _ := bus.Last(ctx, "job-9999"); last == nil || !last.Terminal() {
		t.Fatalf("recent terminal event should be kept, got %+v", last)
	}

	now = now.Add(finishedRetention)
	if err := bus.Publish(ctx, Event{JobID: "running", Status: domain.JobStatusRunning}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	bus.mu.Lock()
	retained, queued := len(bus.last), len(bus.finished)
	bus.mu.Unlock()
	if retained != 1 || queued != 0 {
		t.Fatalf("retained %d events and %d finished entries, want only the running job", retained, queued)
	}
	if last, _ := bus.Last(ctx, "running"); last == nil {
		t.Fatal("running job lost its last event")
	}
}

func TestMemoryBusKeepsRequeuedJob(t *testing.T) {
	bus := NewMemoryBus()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	bus.now = func() time.Time { return now }
	ctx := context.Background()

	_ = bus.Publish(ctx, Event{JobID: "job-1", Status: domain.JobStatusFailed})
	_ = bus.Publish(ctx, Event{JobID: "job-1", Status: domain.JobStatusRunning})
	now = now.Add(finishedRetention)
	_ = bus.Publish(ctx, Event{JobID: "other", Status: domain.JobStatusRunning})

	last, _ := bus.Last(ctx, "job-1")
	if last == nil || last.Status != domain.JobStatusRunning {
		t.Fatalf("Last = %+v, want running event", last)
	}
}
