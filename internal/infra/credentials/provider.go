package credentials

import (
	"context"
	"fmt"
	"strings"

	"genlux/internal/videojob"
)

// Static always yields the same key.
func Static(key string) videojob.CredentialProvider {
	key = strings.TrimSpace(key)
	return videojob.CredentialFunc(func(context.Context) (string, error) {
		return key, nil
	})
}

// UserScoped resolves the key for one user: the user's own key first, then
// the global stored key, then the configured fallback.
type UserScoped struct {
	Store    *Store
	UserID   string
	Fallback string
}

func (u UserScoped) Credential(ctx context.Context) (string, error) {
	if u.Store != nil && u.UserID != "" {
		key, err := u.Store.UserGeminiAPIKey(ctx, u.UserID)
		if err != nil {
			return "", fmt.Errorf("load user key: %w", err)
		}
		if key != "" {
			return key, nil
		}
	}
	if u.Store != nil {
		key, err := u.Store.GeminiAPIKey(ctx)
		if err != nil {
			return "", fmt.Errorf("load global key: %w", err)
		}
		if key != "" {
			return key, nil
		}
	}
	return strings.TrimSpace(u.Fallback), nil
}

type userKey struct{}

// WithUser tags ctx with the user whose key a Generate call should use.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the user set by WithUser.
func UserFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userKey{}).(string)
	return v
}

// ContextScoped is UserScoped with the user taken from the call's context, so
// a single orchestrator can serve every user.
type ContextScoped struct {
	Store    *Store
	Fallback string
}

func (c ContextScoped) Credential(ctx context.Context) (string, error) {
	return UserScoped{Store: c.Store, UserID: UserFromContext(ctx), Fallback: c.Fallback}.Credential(ctx)
}

var (
	_ videojob.CredentialProvider = UserScoped{}
	_ videojob.CredentialProvider = ContextScoped{}
)
