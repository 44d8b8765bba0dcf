package videojob

import (
	"fmt"
	"time"
)

// Stage identifies the transition a Progress event reports.
type Stage string

const (
	StageStarting         Stage = "starting"
	StagePolling          Stage = "polling"
	StageExtending        Stage = "extending"
	StagePollingExtension Stage = "polling_extension"
	StageFetching         Stage = "fetching"
)

// Progress is a display-only status update. It never feeds back into the
// orchestrator.
type Progress struct {
	Stage   Stage
	Step    int
	Total   int
	Message string
}

// ProgressFunc receives events synchronously, in order, once per transition.
// Implementations must not block for long.
type ProgressFunc func(Progress)

// Fanout delivers each event to every non-nil sink in argument order.
func Fanout(sinks ...ProgressFunc) ProgressFunc {
	return func(p Progress) {
		for _, sink := range sinks {
			if sink != nil {
				sink(p)
			}
		}
	}
}

func startingEvent() Progress {
	return Progress{Stage: StageStarting, Message: "Starting video generation..."}
}

func pollingEvent() Progress {
	return Progress{Stage: StagePolling, Message: "Your request is in the queue. Polling for updates..."}
}

func extendingEvent(step, total int) Progress {
	return Progress{Stage: StageExtending, Step: step, Total: total, Message: fmt.Sprintf("Extending video... (%d/%d)", step, total)}
}

func pollingExtensionEvent(step, total int) Progress {
	return Progress{Stage: StagePollingExtension, Step: step, Total: total, Message: fmt.Sprintf("Polling for extension %d...", step)}
}

func fetchingEvent() Progress {
	return Progress{Stage: StageFetching, Message: "Fetching final video..."}
}

// Clock abstracts time for the poll loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
