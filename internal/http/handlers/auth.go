package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"genlux/internal/domain"
	"genlux/internal/middleware"
)

type googleVerifyRequest struct {
	IDToken string `json:"id_token"`
}

type googleVerifyResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      userProfileDTO `json:"user"`
}

type userProfileDTO struct {
	ID                string               `json:"id"`
	Email             string               `json:"email"`
	Name              string               `json:"name,omitempty"`
	Picture           string               `json:"picture,omitempty"`
	Plan              domain.UserPlan      `json:"plan"`
	Locale            string               `json:"locale"`
	FreeUsesRemaining int                  `json:"free_uses_remaining"`
	CanGenerate       bool                 `json:"can_generate"`
	Offer             *domain.UpgradeOffer `json:"offer,omitempty"`
}

func profileFor(u *domain.User) userProfileDTO {
	dto := userProfileDTO{
		ID:                u.ID,
		Email:             u.Email,
		Name:              u.Name,
		Picture:           u.Picture,
		Plan:              u.Plan,
		Locale:            u.Locale,
		FreeUsesRemaining: u.FreeUsesRemaining,
		CanGenerate:       u.CanGenerate(),
	}
	if u.IsFree() {
		offer := domain.ProOffer
		dto.Offer = &offer
	}
	return dto
}

func (a *App) AuthGoogleVerify(w http.ResponseWriter, r *http.Request) {
	var req googleVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id_token required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	claims, err := a.GoogleVerifier.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("google verify failed")
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid google token")
		return
	}
	locale := claims.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	user, err := a.Users.UpsertGoogleUser(r.Context(), &domain.User{
		GoogleSub: claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		Picture:   claims.Picture,
		Locale:    locale,
	}, a.FreeUses)
	if err != nil {
		a.Logger.Error().Err(err).Msg("upsert user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to persist user")
		return
	}

	now := a.now()
	ttl := a.tokenTTL()
	token, err := middleware.IssueToken(a.JWTSecret, user.ID, string(user.Plan), user.Locale, ttl, now)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign jwt failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}
	a.json(w, http.StatusOK, googleVerifyResponse{
		Token:     token,
		ExpiresAt: now.Add(ttl).UTC(),
		User:      profileFor(user),
	})
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, profileFor(user))
}
