package handlers

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"genlux/internal/domain"
	"genlux/internal/middleware"
	"genlux/internal/progress"
	"genlux/internal/storage"
	"genlux/internal/videojob"
)

const maxPromptRunes = 2000

type videoGenerateRequest struct {
	Prompt       string `json:"prompt"`
	AspectRatio  string `json:"aspect_ratio"`
	TargetLength string `json:"target_length"`
}

type videoGenerateResponse struct {
	JobID        string           `json:"job_id"`
	Status       domain.JobStatus `json:"status"`
	Deduplicated bool             `json:"deduplicated"`
	EventsURL    string           `json:"events_url"`
}

type jobErrorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type jobView struct {
	ID           string             `json:"id"`
	Status       domain.JobStatus   `json:"status"`
	Prompt       string             `json:"prompt,omitempty"`
	AspectRatio  string             `json:"aspect_ratio,omitempty"`
	TargetLength string             `json:"target_length,omitempty"`
	Progress     domain.JobProgress `json:"progress"`
	Message      string             `json:"message"`
	Error        *jobErrorDTO       `json:"error,omitempty"`
	DownloadURL  string             `json:"download_url,omitempty"`
	CreatedAt    *time.Time         `json:"created_at,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
	FinishedAt   *time.Time         `json:"finished_at,omitempty"`
}

// DedupeKey hashes the registry key so it fits an index column.
func DedupeKey(userID string, req videojob.Request) string {
	sum := sha256.Sum256([]byte(videojob.Key(userID, req)))
	return hex.EncodeToString(sum[:])
}

func parseVideoRequest(body videoGenerateRequest) (videojob.Request, error) {
	prompt := strings.TrimSpace(body.Prompt)
	if prompt == "" {
		return videojob.Request{}, fmt.Errorf("%w: prompt is required", domain.ErrInvalidPrompt)
	}
	if utf8.RuneCountInString(prompt) > maxPromptRunes {
		return videojob.Request{}, fmt.Errorf("%w: prompt exceeds %d characters", domain.ErrInvalidPrompt, maxPromptRunes)
	}
	if body.AspectRatio == "" {
		body.AspectRatio = string(videojob.AspectLandscape)
	}
	if body.TargetLength == "" {
		body.TargetLength = string(videojob.LengthShort)
	}
	aspect, err := videojob.ParseAspectRatio(body.AspectRatio)
	if err != nil {
		return videojob.Request{}, err
	}
	length, err := videojob.ParseTargetLength(body.TargetLength)
	if err != nil {
		return videojob.Request{}, err
	}
	return videojob.Request{Prompt: prompt, AspectRatio: aspect, Length: length}, nil
}

func downloadPath(jobID string) string {
	return "/v1/videos/" + jobID + "/download"
}

func (a *App) viewOf(ctx context.Context, job *domain.VideoJob) jobView {
	created := job.CreatedAt
	v := jobView{
		ID:           job.ID,
		Status:       job.Status,
		Prompt:       job.Prompt,
		AspectRatio:  job.AspectRatio,
		TargetLength: job.TargetLength,
		Progress:     job.Progress,
		Message:      progress.Localize(middleware.LocaleFromContext(ctx), job.Status, job.Progress),
		CreatedAt:    &created,
		UpdatedAt:    job.UpdatedAt,
		FinishedAt:   job.FinishedAt,
	}
	if job.Status == domain.JobStatusFailed {
		v.Error = &jobErrorDTO{Kind: job.ErrorKind, Message: job.ErrorMessage}
	}
	if job.Status == domain.JobStatusSucceeded && job.StorageKey != "" {
		v.DownloadURL = downloadPath(job.ID)
	}
	return v
}

func (a *App) eventView(ctx context.Context, evt progress.Event) jobView {
	v := jobView{
		ID:        evt.JobID,
		Status:    evt.Status,
		Progress:  evt.Progress,
		Message:   progress.Localize(middleware.LocaleFromContext(ctx), evt.Status, evt.Progress),
		UpdatedAt: evt.At,
	}
	switch evt.Status {
	case domain.JobStatusFailed:
		v.Error = &jobErrorDTO{Kind: evt.ErrorKind, Message: evt.Error}
	case domain.JobStatusSucceeded:
		v.DownloadURL = downloadPath(evt.JobID)
	}
	return v
}

func (a *App) VideosGenerate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var body videoGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req, err := parseVideoRequest(body)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPrompt) {
			a.domainError(w, err)
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	res, err := a.Jobs.Enqueue(r.Context(), domain.NewVideoJob{
		UserID:       userID,
		Prompt:       req.Prompt,
		AspectRatio:  string(req.AspectRatio),
		TargetLength: string(req.Length),
		DedupeKey:    DedupeKey(userID, req),
	})
	if err != nil {
		a.domainError(w, err)
		return
	}

	a.recordUsage(r.Context(), domain.UsageEvent{
		UserID:  userID,
		JobID:   res.JobID,
		Type:    domain.UsageVideoQueued,
		Success: true,
		Country: middleware.CountryFromContext(r.Context()),
		Properties: map[string]any{
			"aspect_ratio":  string(req.AspectRatio),
			"target_length": string(req.Length),
			"deduplicated":  res.Deduplicated,
		},
	})

	a.Logger.Info().
		Str("user_id", userID).
		Str("job_id", res.JobID).
		Bool("deduplicated", res.Deduplicated).
		Msg("video job queued")

	a.json(w, http.StatusAccepted, videoGenerateResponse{
		JobID:        res.JobID,
		Status:       domain.JobStatusQueued,
		Deduplicated: res.Deduplicated,
		EventsURL:    "/v1/videos/" + res.JobID + "/events",
	})
}

func (a *App) jobFromRequest(w http.ResponseWriter, r *http.Request) (*domain.VideoJob, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, false
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return nil, false
	}
	job, err := a.Jobs.GetForUser(r.Context(), jobID, userID)
	if err != nil {
		a.domainError(w, err)
		return nil, false
	}
	return job, true
}

func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := a.jobFromRequest(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, a.viewOf(r.Context(), job))
}

// VideoEvents streams job progress as server-sent events until the job
// reaches a terminal status or the client disconnects.
func (a *App) VideoEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := a.jobFromRequest(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	// The stream outlives any server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ctx := r.Context()
	var events <-chan progress.Event
	if a.Progress != nil && !job.Status.Terminal() {
		ch, cancel, err := a.Progress.Subscribe(ctx, job.ID)
		if err != nil {
			a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("progress subscribe failed, polling only")
		} else {
			defer cancel()
			events = ch
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	send := func(v jobView) bool {
		payload, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(bw, "data: %s\n\n", payload); err != nil {
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	last := a.viewOf(ctx, job)
	if !send(last) || job.Status.Terminal() {
		return
	}

	// follow sends evt and reports whether the stream stays open.
	follow := func(evt progress.Event) bool {
		if evt.Terminal() {
			// The terminal row carries the final error text and timestamps.
			if fresh, err := a.Jobs.GetForUser(ctx, job.ID, job.UserID); err == nil && fresh.Status.Terminal() {
				send(a.viewOf(ctx, fresh))
				return false
			}
			send(a.eventView(ctx, evt))
			return false
		}
		v := a.eventView(ctx, evt)
		if sameProgress(v, last) {
			return true
		}
		last = v
		return send(v)
	}

	// Events published between the job read and Subscribe only show up in Last.
	if events != nil {
		caught, err := a.Progress.Last(ctx, job.ID)
		if err != nil {
			a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("progress last event failed")
		} else if caught != nil && !caught.At.Before(job.UpdatedAt) && !follow(*caught) {
			return
		}
	}

	interval := a.SSEPollInterval
	if interval <= 0 {
		interval = defaultSSEPoll
	}
	poll := time.NewTicker(interval)
	defer poll.Stop()
	keepAlive := time.NewTicker(defaultSSEKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, open := <-events:
			if !open {
				events = nil
				continue
			}
			if !follow(evt) {
				return
			}
		case <-poll.C:
			fresh, err := a.Jobs.GetForUser(ctx, job.ID, job.UserID)
			if err != nil {
				if ctx.Err() == nil {
					a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("poll job failed")
				}
				continue
			}
			v := a.viewOf(ctx, fresh)
			if !sameProgress(v, last) {
				last = v
				if !send(v) {
					return
				}
			}
			if fresh.Status.Terminal() {
				return
			}
		case <-keepAlive.C:
			if _, err := bw.WriteString(": ping\n\n"); err != nil {
				return
			}
			if err := bw.Flush(); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func sameProgress(a, b jobView) bool {
	return a.Status == b.Status && a.Progress == b.Progress
}

func (a *App) VideoDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := a.jobFromRequest(w, r)
	if !ok {
		return
	}
	if job.Status != domain.JobStatusSucceeded || job.StorageKey == "" {
		a.error(w, http.StatusConflict, "not_ready", "video is not ready")
		return
	}
	f, err := a.Files.Open(job.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.error(w, http.StatusGone, "gone", "video file is no longer available")
			return
		}
		a.domainError(w, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		a.domainError(w, err)
		return
	}
	mimeType := job.MimeType
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	name := path.Base(job.StorageKey)
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}
