package videojob

import (
	"fmt"
	"strings"
)

// AspectRatio is the frame shape requested from the provider.
type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
)

// TargetLength selects how many extension steps follow the initial clip.
type TargetLength string

const (
	LengthShort  TargetLength = "short"
	LengthMedium TargetLength = "medium"
	LengthLong   TargetLength = "long"
)

const (
	// DefaultResolution is sent with every submission.
	DefaultResolution = "720p"
	// ContinuationPrompt seeds every extension step.
	ContinuationPrompt = "continue the scene, make it more dynamic"
)

// Request is a single generation submission. It is never mutated after
// construction.
type Request struct {
	Prompt      string
	AspectRatio AspectRatio
	Length      TargetLength
}

// Validate reports unknown enum values. Prompt content is left to the caller.
func (r Request) Validate() error {
	switch r.AspectRatio {
	case AspectLandscape, AspectPortrait:
	default:
		return fmt.Errorf("videojob: unsupported aspect ratio %q", r.AspectRatio)
	}
	switch r.Length {
	case LengthShort, LengthMedium, LengthLong:
	default:
		return fmt.Errorf("videojob: unsupported target length %q", r.Length)
	}
	return nil
}

// Extensions returns the number of extension steps the length requires.
func (l TargetLength) Extensions() int {
	switch l {
	case LengthMedium:
		return 1
	case LengthLong:
		return 2
	default:
		return 0
	}
}

// ParseAspectRatio accepts "16:9", "9:16" or the names landscape/portrait.
func ParseAspectRatio(v string) (AspectRatio, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "16:9", "landscape":
		return AspectLandscape, nil
	case "9:16", "portrait":
		return AspectPortrait, nil
	default:
		return "", fmt.Errorf("videojob: unsupported aspect ratio %q", v)
	}
}

// ParseTargetLength accepts short, medium or long in any case.
func ParseTargetLength(v string) (TargetLength, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "short":
		return LengthShort, nil
	case "medium":
		return LengthMedium, nil
	case "long":
		return LengthLong, nil
	default:
		return "", fmt.Errorf("videojob: unsupported target length %q", v)
	}
}

// VideoRef points at a provider-side video. URI is the retrieval locator.
type VideoRef struct {
	URI      string
	MimeType string
}

// Job is the provider handle for a long-running generation. A job that is
// Done without a Video has failed; Failure carries the provider's reason when
// one was reported.
type Job struct {
	Name    string
	Done    bool
	Video   *VideoRef
	Failure string
}

// SubmitRequest is what the orchestrator sends for the initial clip and for
// every extension step. Seed is nil for the initial clip.
type SubmitRequest struct {
	Prompt      string
	AspectRatio AspectRatio
	Resolution  string
	Count       int
	Seed        *VideoRef
}

// Asset is the downloaded result. The caller owns Data once Generate returns.
type Asset struct {
	Data       []byte
	MimeType   string
	SourceURI  string
	Extensions int
}
