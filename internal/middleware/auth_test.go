package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/propio/chat-server/internal/auth"
)

func TestAuthenticate(t *testing.T) {
	j := auth.NewJWTManager("test-secret", time.Minute)
	token, _, err := j.GenerateToken("usr_1", "a@example.com")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	var gotUserID string
	handler := Authenticate(j)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("expected claims in context")
		}
		gotUserID = claims.UserID
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Token " + token, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/chats", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("%s: got status %d, want %d", tc.name, rec.Code, tc.want)
			}
		})
	}

	if gotUserID != "usr_1" {
		t.Fatalf("expected claims user id usr_1, got %q", gotUserID)
	}
}
