package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestIssueAndVerifyToken(t *testing.T) {
	token, err := IssueToken("secret", "user-1", "free", "id", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	claims, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("VerifyJWT error: %v", err)
	}
	if claims.Sub != "user-1" || claims.Plan != "free" || claims.Issuer != TokenIssuer {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := VerifyJWT("other", token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestVerifyJWTExpired(t *testing.T) {
	token, err := IssueToken("secret", "user-1", "free", "en", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if _, err := VerifyJWT("secret", token); err != errTokenExpired {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestAuthJWT(t *testing.T) {
	token, _ := IssueToken("secret", "user-1", "pro", "id", time.Hour, time.Now())
	var gotUser, gotPlan, gotLocale string
	handler := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotPlan = PlanFromContext(r.Context())
		gotLocale = LocaleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer a.b.c", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + token, want: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), `"unauthorized"`) {
				t.Fatalf("unexpected body: %s", rec.Body.String())
			}
		})
	}
	if gotUser != "user-1" || gotPlan != "pro" || gotLocale != "id" {
		t.Fatalf("context = %q %q %q", gotUser, gotPlan, gotLocale)
	}
}
