package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"genlux/internal/infra"
	"genlux/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
)

// ErrEmptyKey is returned when a blank key is stored.
var ErrEmptyKey = errors.New("api key is required")

// Store persists API keys: one global key per provider in integration_tokens
// and optional per-user keys in user_credentials.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	return scanToken(row.Scan)
}

func (s *Store) SetGeminiAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	return s.upsert(ctx, ProviderGemini, key, nil)
}

// UserGeminiAPIKey returns the key the user selected, or "" when none.
func (s *Store) UserGeminiAPIKey(ctx context.Context, userID string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectUserCredential, userID, ProviderGemini)
	return scanToken(row.Scan)
}

func (s *Store) SetUserGeminiAPIKey(ctx context.Context, userID, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	_, err := s.sql.Exec(ctx, sqlinline.QUpsertUserCredential, userID, ProviderGemini, key)
	return err
}

// DeleteUserGeminiAPIKey clears the user's selection. It reports whether a
// key was removed.
func (s *Store) DeleteUserGeminiAPIKey(ctx context.Context, userID string) (bool, error) {
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteUserCredential, userID, ProviderGemini)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

func scanToken(scan func(dest ...any) error) (string, error) {
	var token string
	if err := scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}
