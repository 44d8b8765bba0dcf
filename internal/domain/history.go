package domain

import "time"

// HistoryItem is a finished generation listed in the user's history.
type HistoryItem struct {
	ID           string
	UserID       string
	JobID        string
	Prompt       string
	AspectRatio  string
	TargetLength string
	StorageKey   string
	MimeType     string
	CreatedAt    time.Time
}

// UsageEvent is an audit row for analytics.
type UsageEvent struct {
	UserID     string
	JobID      string
	Type       string
	Success    bool
	LatencyMS  int
	Country    string
	Properties map[string]any
}

const (
	UsageVideoQueued    = "VIDEO_QUEUED"
	UsageVideoGenerated = "VIDEO_GENERATED"
	UsageVideoFailed    = "VIDEO_FAILED"
)
