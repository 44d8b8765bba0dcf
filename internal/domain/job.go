package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// JobProgress is the last progress event recorded for a job.
type JobProgress struct {
	Stage   string `json:"stage"`
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// VideoJob is a queued or finished generation.
type VideoJob struct {
	ID           string
	UserID       string
	Prompt       string
	AspectRatio  string
	TargetLength string
	Status       JobStatus
	Progress     JobProgress
	ErrorKind    string
	ErrorMessage string
	StorageKey   string
	MimeType     string
	Bytes        int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// NewVideoJob carries what the API accepted.
type NewVideoJob struct {
	UserID       string
	Prompt       string
	AspectRatio  string
	TargetLength string
	DedupeKey    string
}

// EnqueueResult reports the job a submission maps to.
type EnqueueResult struct {
	JobID string
	// Deduplicated is true when an identical active job was reused.
	Deduplicated bool
	Plan         UserPlan
	// Available is the free-plan headroom before this submission.
	Available int
}

// ClaimedJob is a job a worker took ownership of.
type ClaimedJob struct {
	ID           string
	UserID       string
	Prompt       string
	AspectRatio  string
	TargetLength string
	DedupeKey    string
	Attempts     int
}

// JobResult is what a successful run stores.
type JobResult struct {
	StorageKey string
	MimeType   string
	Bytes      int64
	Shared     bool
}
