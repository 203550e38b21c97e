package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 3, CleanupInterval: time.Minute})
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("request over the limit should be rejected")
	}
	if rl.LimitedHits() != 1 {
		t.Fatalf("limited hits = %d, want 1", rl.LimitedHits())
	}

	// A different client has its own budget.
	if !rl.Allow("10.0.0.2") {
		t.Fatal("other client should be allowed")
	}
}

func TestLimiterMiddleware(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	handler := rl.Middleware(
		func(r *http.Request) string { return "10.0.0.1" },
		nil,
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/login", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: status %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/login", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") != "60" {
		t.Fatalf("missing Retry-After header")
	}
}
