package video

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"genlux/internal/providers/genai"
	"genlux/internal/videojob"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type instantClock struct{ now time.Time }

func (c *instantClock) Now() time.Time { return c.now }

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func respond(status int, contentType, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newOrchestrator(t *testing.T, provider videojob.Provider) *videojob.Orchestrator {
	t.Helper()
	orch, err := videojob.New(videojob.Options{
		Provider:    provider,
		Credentials: videojob.CredentialFunc(func(context.Context) (string, error) { return "key", nil }),
		Clock:       &instantClock{},
	})
	if err != nil {
		t.Fatalf("videojob.New returned error: %v", err)
	}
	return orch
}

func TestGeminiProviderMediumChain(t *testing.T) {
	var predicts, gets atomic.Int32
	var seeds []string
	client := genai.NewClient(genai.Options{
		BaseURL: "https://gemini.test/v1beta",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			switch {
			case r.Method == http.MethodPost:
				n := predicts.Add(1)
				body, _ := io.ReadAll(r.Body)
				if strings.Contains(string(body), `"video"`) {
					seeds = append(seeds, string(body))
				}
				if n == 1 {
					return respond(200, "application/json", `{"name":"models/veo/operations/a"}`), nil
				}
				return respond(200, "application/json", `{"name":"models/veo/operations/b"}`), nil
			case strings.HasPrefix(r.URL.Path, "/v1beta/models/veo/operations/"):
				gets.Add(1)
				id := strings.TrimPrefix(r.URL.Path, "/v1beta/models/veo/operations/")
				return respond(200, "application/json", `{"name":"models/veo/operations/`+id+`","done":true,
					"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"https://files.test/`+id+`:download?alt=media"}}]}}}`), nil
			case r.URL.Host == "files.test":
				if r.URL.Query().Get("key") != "key" {
					return respond(403, "text/plain", "missing key"), nil
				}
				return respond(200, "video/mp4", "bytes-of-"+r.URL.Path), nil
			}
			t.Fatalf("unexpected request %s %s", r.Method, r.URL)
			return nil, nil
		})},
	})

	orch := newOrchestrator(t, NewGeminiProvider(client))
	asset, err := orch.Generate(context.Background(), videojob.Request{Prompt: "p", AspectRatio: videojob.AspectLandscape, Length: videojob.LengthMedium}, nil)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if predicts.Load() != 2 || gets.Load() != 2 {
		t.Fatalf("predicts=%d gets=%d, want 2/2", predicts.Load(), gets.Load())
	}
	if len(seeds) != 1 || !strings.Contains(seeds[0], "https://files.test/a:download?alt=media") {
		t.Fatalf("extension seed payloads = %v", seeds)
	}
	if string(asset.Data) != "bytes-of-/b:download" || asset.MimeType != "video/mp4" {
		t.Fatalf("asset = %q (%s)", asset.Data, asset.MimeType)
	}
}

func TestGeminiProviderRejectedKey(t *testing.T) {
	client := genai.NewClient(genai.Options{
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return respond(404, "application/json", `{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`), nil
		})},
	})
	orch := newOrchestrator(t, NewGeminiProvider(client))
	_, err := orch.Generate(context.Background(), videojob.Request{Prompt: "p", AspectRatio: videojob.AspectLandscape, Length: videojob.LengthShort}, nil)
	if !errors.Is(err, videojob.ErrCredentialInvalid) {
		t.Fatalf("error = %v, want credential invalid", err)
	}
}

func TestGeminiProviderFilteredJob(t *testing.T) {
	job := toJob(&genai.Operation{Name: "op", Done: true, Response: &genai.OperationResponse{
		GenerateVideoResponse: &genai.GenerateVideoResponse{RAIMediaFilteredReasons: []string{"filtered"}},
	}})
	if !job.Done || job.Video != nil || job.Failure != "filtered" {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestSyntheticProviderRunsFullChain(t *testing.T) {
	provider := NewSyntheticProvider(2)
	orch := newOrchestrator(t, provider)
	var stages []videojob.Stage
	asset, err := orch.Generate(context.Background(), videojob.Request{Prompt: "beach", AspectRatio: videojob.AspectPortrait, Length: videojob.LengthLong}, func(p videojob.Progress) {
		stages = append(stages, p.Stage)
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(stages) != 7 {
		t.Fatalf("stages = %v", stages)
	}
	if !strings.Contains(string(asset.Data), "Prompt: continue the scene") {
		t.Fatalf("final asset should come from the last extension: %q", asset.Data)
	}
}

func TestNewProvider(t *testing.T) {
	if _, err := NewProvider(KindSynthetic, nil); err != nil {
		t.Fatalf("synthetic: %v", err)
	}
	if _, err := NewProvider(KindGemini, nil); err == nil {
		t.Fatal("gemini without client should fail")
	}
	if _, err := NewProvider("sora", genai.NewClient(genai.Options{})); err == nil {
		t.Fatal("unknown provider should fail")
	}
}
