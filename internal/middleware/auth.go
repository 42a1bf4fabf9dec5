// Package middleware contains the HTTP middlewares shared by the API:
// JWT authentication and per-key rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/propio/chat-server/internal/auth"
)

// context key type for storing auth claims in context
type authContextKey struct{}

// ClaimsFromContext extracts auth claims from the context, if present.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	v := ctx.Value(authContextKey{})
	if v == nil {
		return nil, false
	}
	c, ok := v.(*auth.Claims)
	return c, ok
}

// WithClaims returns a copy of ctx carrying the given claims. Exposed for
// handler tests.
func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, authContextKey{}, c)
}

// Authenticate returns a middleware that enforces a Bearer JWT on every
// request it wraps and stores the verified claims in the request context.
func Authenticate(j *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, "malformed authorization header")
				return
			}

			claims, err := j.VerifyToken(parts[1])
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
