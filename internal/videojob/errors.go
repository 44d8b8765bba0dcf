package videojob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a Generate failure so callers can choose a reaction, e.g.
// asking the user to pick a different credential.
type Kind string

const (
	KindUnclassified      Kind = "unclassified"
	KindCredentialMissing Kind = "credential_missing"
	KindCredentialInvalid Kind = "credential_invalid"
	KindGenerationFailed  Kind = "generation_failed"
	KindDownloadFailed    Kind = "download_failed"
	KindTimeout           Kind = "timeout"
	KindCanceled          Kind = "canceled"
)

// entityNotFound is the provider text returned when the selected key can no
// longer reach the model.
const entityNotFound = "Requested entity was not found"

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrCredentialMissing = &Error{Kind: KindCredentialMissing}
	ErrCredentialInvalid = &Error{Kind: KindCredentialInvalid}
	ErrGenerationFailed  = &Error{Kind: KindGenerationFailed}
	ErrDownloadFailed    = &Error{Kind: KindDownloadFailed}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrCanceled          = &Error{Kind: KindCanceled}
)

// Error is the only error type Generate returns.
type Error struct {
	Kind Kind
	// Stage names the step that failed: "initial", "extension 2", "download".
	Stage      string
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("videojob: ")
	switch e.Kind {
	case KindCredentialMissing:
		b.WriteString("API key not found. Please select an API key.")
	case KindCredentialInvalid:
		b.WriteString("API key is invalid or was not found")
	case KindGenerationFailed:
		fmt.Fprintf(&b, "video generation failed at %s", e.Stage)
	case KindDownloadFailed:
		fmt.Fprintf(&b, "failed to download video: %s - %s", e.Status, e.Body)
	case KindTimeout:
		fmt.Fprintf(&b, "timed out during %s", e.Stage)
	case KindCanceled:
		fmt.Fprintf(&b, "canceled during %s", e.Stage)
	default:
		b.WriteString(string(e.Kind))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Stage == "" && t.Err == nil
}

// KindOf returns the kind of err, KindUnclassified for foreign errors and the
// empty kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnclassified
}

// TransportError is returned by Provider.Download for non-success responses.
type TransportError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("download status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// CredentialRejected reports whether the files endpoint refused the key.
func (e *TransportError) CredentialRejected() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

type credentialRejecter interface {
	CredentialRejected() bool
}

// rejectsCredential prefers the provider's structured signal and falls back to
// the message text for providers that only report prose.
func rejectsCredential(err error) bool {
	var cr credentialRejecter
	if errors.As(err, &cr) && cr.CredentialRejected() {
		return true
	}
	return strings.Contains(err.Error(), entityNotFound)
}

// classify applies the single reclassification layer to an error raised during
// stage.
func classify(stage string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if (e.Kind == KindDownloadFailed || e.Kind == KindUnclassified) && rejectsCredential(err) {
			return &Error{Kind: KindCredentialInvalid, Stage: e.Stage, Err: err}
		}
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCanceled, Stage: stage, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Stage: stage, Err: err}
	case rejectsCredential(err):
		return &Error{Kind: KindCredentialInvalid, Stage: stage, Err: err}
	}
	var te *TransportError
	if errors.As(err, &te) {
		return &Error{Kind: KindDownloadFailed, Stage: stage, StatusCode: te.StatusCode, Status: te.Status, Body: te.Body}
	}
	return &Error{Kind: KindUnclassified, Stage: stage, Err: err}
}
