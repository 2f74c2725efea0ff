package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stigwatch/internal/config"
	"stigwatch/pkg/logger"
)

type memoryLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	keys   []string
	err    error
}

func (m *memoryLimiter) CheckRateLimit(_ context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, 0, time.Time{}, m.err
	}
	m.keys = append(m.keys, key)
	m.counts[key]++
	remaining := limit - m.counts[key]
	if remaining < 0 {
		remaining = 0
	}
	return m.counts[key] <= limit, remaining, time.Now().Add(window), nil
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestRateLimiter(t *testing.T) {
	store := &memoryLimiter{counts: map[string]int64{}}
	h := RateLimiter(store, config.RateLimitConfig{RequestsPerMinute: 2, RequestsPerHour: 100}, logger.NewNop())(okHandler)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/systems", nil)
		req.RemoteAddr = "10.1.1.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusNoContent, send().Code)

	blocked := send()
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, blocked.Body.String())

	assert.Contains(t, store.keys, "m:ip:10.1.1.1")
	assert.Contains(t, store.keys, "h:ip:10.1.1.1")
}

func TestRateLimiterPassThrough(t *testing.T) {
	t.Run("store error", func(t *testing.T) {
		store := &memoryLimiter{counts: map[string]int64{}, err: errors.New("redis down")}
		h := RateLimiter(store, config.RateLimitConfig{RequestsPerMinute: 1}, logger.NewNop())(okHandler)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("preflight", func(t *testing.T) {
		store := &memoryLimiter{counts: map[string]int64{}}
		h := RateLimiter(store, config.RateLimitConfig{RequestsPerMinute: 1}, logger.NewNop())(okHandler)
		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}
		assert.Empty(t, store.keys)
	})
}

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "debug", Format: "json", Output: &buf})

	h := Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/checklists/x", nil)
	req = req.WithContext(context.WithValue(req.Context(), chimw.RequestIDKey, "req-42"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"status":404`)
	assert.Contains(t, out, `"path":"/api/v1/checklists/x"`)
	assert.Contains(t, out, `"request_id":"req-42"`)
}
