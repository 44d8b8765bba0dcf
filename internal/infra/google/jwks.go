package google

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultKeyTTL = time.Hour
	// minForcedRefresh limits how often an unknown kid may trigger a fetch.
	minForcedRefresh = time.Minute
)

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Claims are the ID token fields the API uses.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	Locale        string
}

// Verifier checks Google ID tokens against the issuer's published keys.
type Verifier struct {
	issuer     string
	clientID   string
	httpClient *http.Client
	group      singleflight.Group

	mu      sync.RWMutex
	cache   map[string]*rsa.PublicKey
	fetched time.Time
	expires time.Time
	now     func() time.Time
}

// NewVerifier builds a Verifier. httpClient may be nil.
func NewVerifier(issuer, clientID string, httpClient *http.Client) *Verifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Verifier{
		issuer:     strings.TrimRight(issuer, "/"),
		clientID:   clientID,
		cache:      make(map[string]*rsa.PublicKey),
		httpClient: httpClient,
		now:        time.Now,
	}
}

// VerifyIDToken validates signature, issuer, audience and expiry.
func (v *Verifier) VerifyIDToken(ctx context.Context, token string) (*Claims, error) {
	if v.clientID == "" {
		return nil, errors.New("google client id is not configured")
	}
	header, payload, signature, signingInput, err := parseJWT(token)
	if err != nil {
		return nil, err
	}
	if alg, _ := header["alg"].(string); alg != "RS256" {
		return nil, fmt.Errorf("unsupported token algorithm %q", alg)
	}
	kid, _ := header["kid"].(string)
	key, err := v.key(ctx, kid)
	if err != nil {
		return nil, err
	}
	hashed := sha256.Sum256([]byte(signingInput))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, hashed[:], signature); err != nil {
		return nil, err
	}
	if iss, _ := payload["iss"].(string); !v.issuerMatches(iss) {
		return nil, errors.New("invalid issuer")
	}
	if !audienceMatches(payload["aud"], v.clientID) {
		return nil, errors.New("invalid audience")
	}
	exp, ok := payload["exp"].(float64)
	if !ok || time.Now().Unix() > int64(exp) {
		return nil, errors.New("token expired")
	}
	claims := &Claims{}
	claims.Subject, _ = payload["sub"].(string)
	claims.Email, _ = payload["email"].(string)
	claims.Name, _ = payload["name"].(string)
	claims.Picture, _ = payload["picture"].(string)
	claims.Locale, _ = payload["locale"].(string)
	switch verified := payload["email_verified"].(type) {
	case bool:
		claims.EmailVerified = verified
	case string:
		claims.EmailVerified = verified == "true"
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// issuerMatches accepts Google's issuer with or without the scheme.
func (v *Verifier) issuerMatches(iss string) bool {
	if iss == v.issuer {
		return true
	}
	return strings.TrimPrefix(iss, "https://") == strings.TrimPrefix(v.issuer, "https://")
}

func audienceMatches(aud any, clientID string) bool {
	switch val := aud.(type) {
	case string:
		return val == clientID
	case []string:
		for _, a := range val {
			if a == clientID {
				return true
			}
		}
	case []any:
		for _, a := range val {
			if s, ok := a.(string); ok && s == clientID {
				return true
			}
		}
	}
	return false
}

// key returns the public key for kid, fetching the key set when the cache
// expired or, at most once per minForcedRefresh, when kid is unknown.
func (v *Verifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	pk, ok := v.cache[kid]
	now := v.now()
	expired := now.After(v.expires)
	throttled := now.Sub(v.fetched) < minForcedRefresh
	v.mu.RUnlock()

	if ok && !expired {
		return pk, nil
	}
	if !ok && !expired && throttled {
		return nil, errors.New("unknown kid")
	}
	if err := v.refresh(ctx); err != nil {
		if ok {
			// A stale key still verifies while the issuer is unreachable.
			return pk, nil
		}
		return nil, err
	}
	v.mu.RLock()
	pk, ok = v.cache[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, errors.New("unknown kid")
	}
	return pk, nil
}

// refresh collapses concurrent fetches into one request pair.
func (v *Verifier) refresh(ctx context.Context) error {
	_, err, _ := v.group.Do("jwks", func() (any, error) {
		return nil, v.fetchKeys(ctx)
	})
	return err
}

func (v *Verifier) fetchKeys(ctx context.Context) error {
	cfg, err := v.fetchConfig(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.JWKSURI, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return err
	}
	keys := make(map[string]*rsa.PublicKey)
	for _, key := range set.Keys {
		if key.Kty != "RSA" {
			continue
		}
		pub, err := rsaKeyFromJWK(key)
		if err != nil {
			continue
		}
		keys[key.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("no keys fetched")
	}
	now := v.now()
	v.mu.Lock()
	v.cache = keys
	v.fetched = now
	v.expires = now.Add(maxAge(resp.Header.Get("Cache-Control"), defaultKeyTTL))
	v.mu.Unlock()
	return nil
}

// maxAge reads max-age from a Cache-Control header.
func maxAge(header string, fallback time.Duration) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		secs, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || secs <= 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func (v *Verifier) fetchConfig(ctx context.Context) (*struct {
	JWKSURI string `json:"jwks_uri"`
}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch openid configuration: status %d", resp.StatusCode)
	}
	var cfg struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func rsaKeyFromJWK(j jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

func parseJWT(token string) (map[string]any, map[string]any, []byte, string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, nil, nil, "", errors.New("invalid token")
	}
	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, nil, "", err
	}
	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, nil, "", err
	}
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, nil, "", err
	}
	var header map[string]any
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, nil, nil, "", err
	}
	var payload map[string]any
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return nil, nil, nil, "", err
	}
	return header, payload, signature, parts[0] + "." + parts[1], nil
}
