package video

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"genlux/internal/videojob"
)

const syntheticScheme = "synthetic://"

// SyntheticProvider is an offline stand-in for the remote API. Jobs finish
// after a fixed number of refreshes and download as a small placeholder
// payload, which keeps the worker and CLI usable without a key.
type SyntheticProvider struct {
	readyAfter int

	mu    sync.Mutex
	jobs  map[string]*syntheticJob
	count int
}

type syntheticJob struct {
	refreshes int
	seed      string
	prompt    string
}

// NewSyntheticProvider returns a provider whose jobs finish after readyAfter
// refreshes.
func NewSyntheticProvider(readyAfter int) *SyntheticProvider {
	if readyAfter < 0 {
		readyAfter = 0
	}
	return &SyntheticProvider{readyAfter: readyAfter, jobs: make(map[string]*syntheticJob)}
}

func (s *SyntheticProvider) Submit(ctx context.Context, credential string, req videojob.SubmitRequest) (*videojob.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parent := ""
	if req.Seed != nil {
		parent = req.Seed.URI
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	seed := deterministicSeed(req.Prompt, string(req.AspectRatio), parent, s.count)
	name := fmt.Sprintf("operations/synthetic-%s", seed)
	s.jobs[name] = &syntheticJob{seed: seed, prompt: req.Prompt}
	return s.snapshot(name), nil
}

func (s *SyntheticProvider) Refresh(ctx context.Context, credential string, job *videojob.Job) (*videojob.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[job.Name]
	if !ok {
		return nil, fmt.Errorf("synthetic: Requested entity was not found: %s", job.Name)
	}
	j.refreshes++
	return s.snapshot(job.Name), nil
}

func (s *SyntheticProvider) Download(ctx context.Context, credential, locator string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	seed := strings.TrimPrefix(locator, syntheticScheme)
	s.mu.Lock()
	var prompt string
	for _, j := range s.jobs {
		if j.seed == seed {
			prompt = j.prompt
			break
		}
	}
	s.mu.Unlock()
	if !strings.HasPrefix(locator, syntheticScheme) || seed == "" {
		return nil, "", &videojob.TransportError{StatusCode: 404, Status: "404 Not Found", Body: "unknown synthetic video"}
	}
	return renderSyntheticVideo(seed, prompt), "video/mp4", nil
}

func (s *SyntheticProvider) snapshot(name string) *videojob.Job {
	j := s.jobs[name]
	job := &videojob.Job{Name: name}
	if j.refreshes >= s.readyAfter {
		job.Done = true
		job.Video = &videojob.VideoRef{URI: syntheticScheme + j.seed, MimeType: "video/mp4"}
	}
	return job
}

func renderSyntheticVideo(seed, prompt string) []byte {
	lines := []string{
		"Synthetic video placeholder",
		fmt.Sprintf("Seed: %s", seed),
		fmt.Sprintf("Prompt: %s", strings.TrimSpace(prompt)),
	}
	return []byte(strings.Join(lines, "\n"))
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var _ videojob.Provider = (*SyntheticProvider)(nil)
