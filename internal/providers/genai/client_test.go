package genai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(fn roundTripFunc) *Client {
	return NewClient(Options{
		BaseURL:    "https://gemini.test/v1beta/",
		Model:      "veo-test",
		HTTPClient: &http.Client{Transport: fn},
	})
}

func TestPredictVideoSendsExtensionPayload(t *testing.T) {
	var captured predictLongRunningRequest
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s", r.Method)
		}
		if r.URL.String() != "https://gemini.test/v1beta/models/veo-test:predictLongRunning" {
			t.Fatalf("url = %s", r.URL.String())
		}
		if got := r.Header.Get("x-goog-api-key"); got != "key-123" {
			t.Fatalf("api key header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"name":"models/veo-test/operations/op-1"}`), nil
	})

	op, err := client.PredictVideo(context.Background(), "key-123", VideoRequest{
		Prompt:         "continue the scene",
		AspectRatio:    "9:16",
		Resolution:     "720p",
		NumberOfVideos: 1,
		SeedVideoURI:   "https://files.test/v1",
	})
	if err != nil {
		t.Fatalf("PredictVideo returned error: %v", err)
	}
	if op.Name != "models/veo-test/operations/op-1" || op.Done {
		t.Fatalf("unexpected operation: %+v", op)
	}
	if len(captured.Instances) != 1 {
		t.Fatalf("instances = %d", len(captured.Instances))
	}
	inst := captured.Instances[0]
	if inst.Prompt != "continue the scene" || inst.Video == nil || inst.Video.URI != "https://files.test/v1" {
		t.Fatalf("unexpected instance: %+v", inst)
	}
	if captured.Parameters.AspectRatio != "9:16" || captured.Parameters.Resolution != "720p" || captured.Parameters.NumberOfVideos != 1 {
		t.Fatalf("unexpected parameters: %+v", captured.Parameters)
	}
}

func TestGetOperationDecodesGeneratedVideo(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1beta/models/veo-test/operations/op-1" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{
			"name": "models/veo-test/operations/op-1",
			"done": true,
			"response": {
				"@type": "type.googleapis.com/google.ai.generativelanguage.v1beta.PredictLongRunningResponse",
				"generateVideoResponse": {
					"generatedSamples": [{"video": {"uri": "https://files.test/abc:download?alt=media"}}]
				}
			}
		}`), nil
	})

	op, err := client.GetOperation(context.Background(), "key", "models/veo-test/operations/op-1")
	if err != nil {
		t.Fatalf("GetOperation returned error: %v", err)
	}
	video := op.FirstVideo()
	if !op.Done || video == nil || video.URI != "https://files.test/abc:download?alt=media" {
		t.Fatalf("unexpected operation: %+v", op)
	}
}

func TestOperationFailureReason(t *testing.T) {
	filtered := &Operation{Done: true, Response: &OperationResponse{GenerateVideoResponse: &GenerateVideoResponse{
		RAIMediaFilteredCount:   1,
		RAIMediaFilteredReasons: []string{"blocked by safety filter"},
	}}}
	if filtered.FirstVideo() != nil {
		t.Fatal("filtered operation should carry no video")
	}
	if got := filtered.FailureReason(); got != "blocked by safety filter" {
		t.Fatalf("FailureReason = %q", got)
	}
	failed := &Operation{Done: true, Error: &OperationError{Code: 13, Message: "internal"}}
	if got := failed.FailureReason(); got != "internal" {
		t.Fatalf("FailureReason = %q", got)
	}
}

func TestAPIErrorCredentialRejected(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{
			name:   "invalid key reason",
			status: http.StatusBadRequest,
			body:   `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT","details":[{"@type":"type.googleapis.com/google.rpc.ErrorInfo","reason":"API_KEY_INVALID"}]}}`,
			want:   true,
		},
		{
			name:   "permission denied",
			status: http.StatusForbidden,
			body:   `{"error":{"code":403,"message":"denied","status":"PERMISSION_DENIED"}}`,
			want:   true,
		},
		{
			name:   "quota",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`,
			want:   false,
		},
		{
			name:   "plain text body",
			status: http.StatusBadGateway,
			body:   "upstream unavailable",
			want:   false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(func(r *http.Request) (*http.Response, error) {
				return jsonResponse(tc.status, tc.body), nil
			})
			_, err := client.PredictVideo(context.Background(), "key", VideoRequest{Prompt: "p"})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", apiErr.StatusCode, tc.status)
			}
			if got := apiErr.CredentialRejected(); got != tc.want {
				t.Fatalf("CredentialRejected = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDownloadAppendsKey(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		if got := r.URL.Query().Get("key"); got != "secret" {
			t.Fatalf("key query = %q", got)
		}
		if got := r.URL.Query().Get("alt"); got != "media" {
			t.Fatalf("alt query = %q", got)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"video/mp4"}},
			Body:       io.NopCloser(strings.NewReader("mp4-bytes")),
		}, nil
	})

	data, mime, err := client.Download(context.Background(), "secret", "https://files.test/abc:download?alt=media")
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if string(data) != "mp4-bytes" || mime != "video/mp4" {
		t.Fatalf("Download = %q, %q", data, mime)
	}
}

func TestDownloadReportsStatusAndBody(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Status:     "404 Not Found",
			Body:       io.NopCloser(strings.NewReader(" Requested entity was not found. ")),
		}, nil
	})

	_, _, err := client.Download(context.Background(), "secret", "https://files.test/abc")
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("error = %v, want *DownloadError", err)
	}
	if dlErr.StatusCode != 404 || dlErr.Status != "404 Not Found" || dlErr.Body != "Requested entity was not found." {
		t.Fatalf("unexpected download error: %+v", dlErr)
	}
}
