package video

import (
	"context"
	"errors"

	"genlux/internal/providers/genai"
	"genlux/internal/videojob"
)

// GeminiProvider drives Veo through the Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(client *genai.Client) *GeminiProvider {
	return &GeminiProvider{client: client}
}

func (g *GeminiProvider) Submit(ctx context.Context, credential string, req videojob.SubmitRequest) (*videojob.Job, error) {
	vr := genai.VideoRequest{
		Prompt:         req.Prompt,
		AspectRatio:    string(req.AspectRatio),
		Resolution:     req.Resolution,
		NumberOfVideos: req.Count,
	}
	if req.Seed != nil {
		vr.SeedVideoURI = req.Seed.URI
	}
	op, err := g.client.PredictVideo(ctx, credential, vr)
	if err != nil {
		return nil, err
	}
	return toJob(op), nil
}

func (g *GeminiProvider) Refresh(ctx context.Context, credential string, job *videojob.Job) (*videojob.Job, error) {
	op, err := g.client.GetOperation(ctx, credential, job.Name)
	if err != nil {
		return nil, err
	}
	return toJob(op), nil
}

func (g *GeminiProvider) Download(ctx context.Context, credential, locator string) ([]byte, string, error) {
	data, mime, err := g.client.Download(ctx, credential, locator)
	if err != nil {
		var dl *genai.DownloadError
		if errors.As(err, &dl) {
			return nil, "", &videojob.TransportError{StatusCode: dl.StatusCode, Status: dl.Status, Body: dl.Body}
		}
		return nil, "", err
	}
	return data, mime, nil
}

func toJob(op *genai.Operation) *videojob.Job {
	job := &videojob.Job{Name: op.Name, Done: op.Done}
	if !op.Done {
		return job
	}
	if v := op.FirstVideo(); v != nil {
		job.Video = &videojob.VideoRef{URI: v.URI, MimeType: v.MimeType}
	} else {
		job.Failure = op.FailureReason()
	}
	return job
}

var _ videojob.Provider = (*GeminiProvider)(nil)
