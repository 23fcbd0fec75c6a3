package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campuskit/schoolstock-backend/pkg/config"
)

type fakeRateLimiter struct {
	counts map[string]int64
	limit  int64
}

func (f *fakeRateLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	cfg := config.RateLimitConfig{Window: time.Minute, Limit: 2}
	store := &fakeRateLimiter{}
	handler := RateLimit(cfg, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	userCtx := WithUserID(context.Background(), "user-1")
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil).WithContext(userCtx)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i+1, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil).WithContext(userCtx)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
}

func TestRateLimitScopesPerUser(t *testing.T) {
	cfg := config.RateLimitConfig{Window: time.Minute, Limit: 1}
	store := &fakeRateLimiter{}
	handler := RateLimit(cfg, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, user := range []string{"user-1", "user-2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil).
			WithContext(WithUserID(context.Background(), user))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("user %s: expected 200 got %d", user, resp.Code)
		}
	}
}

func TestRateLimitDisabledWithoutStore(t *testing.T) {
	cfg := config.RateLimitConfig{Window: time.Minute, Limit: 1}
	handler := RateLimit(cfg, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", resp.Code)
		}
	}
}
