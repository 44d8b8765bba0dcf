package handlers

import (
	"net/http"
	"strconv"
	"time"
)

const defaultHistoryLimit = 20

type historyItemDTO struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	Prompt       string    `json:"prompt"`
	AspectRatio  string    `json:"aspect_ratio"`
	TargetLength string    `json:"target_length"`
	MimeType     string    `json:"mime_type"`
	DownloadURL  string    `json:"download_url"`
	CreatedAt    time.Time `json:"created_at"`
}

func (a *App) ListHistory(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	items, err := a.History.ListByUser(r.Context(), userID, limit)
	if err != nil {
		a.domainError(w, err)
		return
	}
	out := make([]historyItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, historyItemDTO{
			ID:           item.ID,
			JobID:        item.JobID,
			Prompt:       item.Prompt,
			AspectRatio:  item.AspectRatio,
			TargetLength: item.TargetLength,
			MimeType:     item.MimeType,
			DownloadURL:  downloadPath(item.JobID),
			CreatedAt:    item.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": out})
}
