package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"genlux/internal/infra/credentials"
)

type geminiKeyRequest struct {
	APIKey string `json:"api_key"`
}

type geminiKeyStatus struct {
	Configured bool   `json:"configured"`
	Hint       string `json:"hint,omitempty"`
}

// maskKey keeps the last four characters so users can tell keys apart.
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 4) + key[len(key)-4:]
}

func (a *App) GeminiKeyStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	key, err := a.Credentials.UserGeminiAPIKey(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	status := geminiKeyStatus{Configured: key != ""}
	if key != "" {
		status.Hint = maskKey(key)
	}
	a.json(w, http.StatusOK, status)
}

func (a *App) PutGeminiKey(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req geminiKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Credentials.SetUserGeminiAPIKey(r.Context(), userID, req.APIKey); err != nil {
		if errors.Is(err, credentials.ErrEmptyKey) {
			a.error(w, http.StatusBadRequest, "bad_request", "api_key required")
			return
		}
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, geminiKeyStatus{Configured: true, Hint: maskKey(strings.TrimSpace(req.APIKey))})
}

func (a *App) DeleteGeminiKey(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	removed, err := a.Credentials.DeleteUserGeminiAPIKey(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if !removed {
		a.error(w, http.StatusNotFound, "not_found", "no gemini key stored")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
