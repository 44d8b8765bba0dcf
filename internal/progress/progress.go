// Package progress fans job progress out from workers to API subscribers.
package progress

import (
	"context"
	"time"

	"genlux/internal/domain"
)

// Event is one progress update of a job.
type Event struct {
	JobID     string             `json:"job_id"`
	Status    domain.JobStatus   `json:"status"`
	Progress  domain.JobProgress `json:"progress"`
	ErrorKind string             `json:"error_kind,omitempty"`
	Error     string             `json:"error,omitempty"`
	At        time.Time          `json:"at"`
}

// Terminal reports whether no further events follow.
func (e Event) Terminal() bool {
	return e.Status.Terminal()
}

// Bus publishes events and lets readers follow a single job.
type Bus interface {
	Publish(ctx context.Context, evt Event) error
	// Last returns the most recent event for jobID or nil.
	Last(ctx context.Context, jobID string) (*Event, error)
	// Subscribe streams events for jobID until cancel is called or ctx ends.
	Subscribe(ctx context.Context, jobID string) (events <-chan Event, cancel func(), err error)
}
