package genai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-success response from a Gemini JSON endpoint.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Reasons    []string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini status %d", e.StatusCode)
	}
	return fmt.Sprintf("gemini status %d: %s", e.StatusCode, e.Message)
}

// CredentialRejected reports whether the API refused the key itself rather
// than the request.
func (e *APIError) CredentialRejected() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	switch e.Status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return true
	}
	for _, reason := range e.Reasons {
		if reason == "API_KEY_INVALID" || reason == "API_KEY_SERVICE_BLOCKED" {
			return true
		}
	}
	return false
}

// DownloadError is a non-success response from the file download endpoint.
type DownloadError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download file status %d: %s", e.StatusCode, e.Body)
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
		Details []struct {
			Type   string `json:"@type,omitempty"`
			Reason string `json:"reason,omitempty"`
		} `json:"details,omitempty"`
	} `json:"error"`
}

func decodeAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	var payload geminiErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		apiErr.Message = payload.Error.Message
		apiErr.Status = payload.Error.Status
		for _, d := range payload.Error.Details {
			if d.Reason != "" {
				apiErr.Reasons = append(apiErr.Reasons, d.Reason)
			}
		}
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
