package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"genlux/internal/domain"
	"genlux/internal/infra"
	"genlux/internal/infra/google"
	"genlux/internal/middleware"
	"genlux/internal/progress"
	"genlux/internal/storage"
)

const (
	defaultTokenTTL     = 24 * time.Hour
	defaultSSEPoll      = 2 * time.Second
	defaultSSEKeepAlive = 15 * time.Second
)

// IDTokenVerifier checks a Google ID token; *google.Verifier implements it.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, token string) (*google.Claims, error)
}

// CredentialStore manages the Gemini key a user selected.
type CredentialStore interface {
	UserGeminiAPIKey(ctx context.Context, userID string) (string, error)
	SetUserGeminiAPIKey(ctx context.Context, userID, key string) error
	DeleteUserGeminiAPIKey(ctx context.Context, userID string) (bool, error)
}

// ReadyCheck reports whether a backing service is reachable.
type ReadyCheck func(ctx context.Context) error

// App carries the dependencies shared by every handler.
type App struct {
	Logger         infra.Logger
	JWTSecret      string
	TokenTTL       time.Duration
	FreeUses       int
	GoogleVerifier IDTokenVerifier
	Users          domain.UserRepository
	Jobs           domain.JobRepository
	History        domain.HistoryRepository
	Usage          domain.UsageRecorder
	Credentials    CredentialStore
	Files          *storage.FileStore
	Progress       progress.Bus
	ReadyChecks    map[string]ReadyCheck
	// SSEPollInterval is how often the event stream re-reads the job when
	// the bus is quiet.
	SSEPollInterval time.Duration
	Now             func() time.Time
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{"error": errorBody{Code: code, Message: message}})
}

// domainError maps repository errors onto API responses.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, domain.ErrInvalidPrompt):
		a.error(w, http.StatusBadRequest, "invalid_prompt", err.Error())
	case errors.Is(err, domain.ErrUpgradeRequired):
		a.json(w, http.StatusPaymentRequired, map[string]any{
			"error": errorBody{Code: "upgrade_required", Message: "free generations used up"},
			"offer": domain.ProOffer,
		})
	case errors.Is(err, domain.ErrDuplicateOperation):
		a.error(w, http.StatusConflict, "duplicate_operation", "an identical video is already being generated")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		a.Logger.Error().Err(err).Msg("handler error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) tokenTTL() time.Duration {
	if a.TokenTTL > 0 {
		return a.TokenTTL
	}
	return defaultTokenTTL
}

func (a *App) recordUsage(ctx context.Context, e domain.UsageEvent) {
	if a.Usage == nil {
		return
	}
	if err := a.Usage.Record(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Warn().Err(err).Str("event", e.Type).Msg("log usage failed")
	}
}
