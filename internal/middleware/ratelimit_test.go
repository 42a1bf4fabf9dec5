package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterStore_AllowAndCleanup(t *testing.T) {
	// allow 5 events immediately then the 6th should be rejected
	s := NewLimiterStore(5, 5, 100*time.Millisecond)
	defer s.Stop()

	key := "203.0.113.9"
	for i := 0; i < 5; i++ {
		if !s.Allow(key) {
			t.Fatalf("expected allow at iteration %d", i)
		}
	}

	if s.Allow(key) {
		t.Fatalf("expected limiter to block after burst consumed")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	s := NewLimiterStore(1, 1, time.Minute)
	defer s.Stop()

	handler := RateLimit(s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "203.0.113.9:52000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be throttled, got %d", rec.Code)
	}
}
