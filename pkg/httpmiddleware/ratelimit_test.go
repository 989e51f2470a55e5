package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, remoteAddr string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := range 4 {
		ok, remaining, reset := l.take("a", base.Add(time.Duration(i)*time.Second))
		require.True(t, ok, "request %d", i)
		assert.Equal(t, 3-i, remaining)
		assert.Equal(t, base.Add(time.Minute), reset)
	}
	ok, _, _ := l.take("a", base.Add(30*time.Second))
	assert.False(t, ok)

	// A quarter into the next bucket, 3/4 of the previous 4 still count.
	ok, remaining, _ := l.take("a", base.Add(75*time.Second))
	require.True(t, ok)
	assert.Equal(t, 0, remaining)
	ok, _, _ = l.take("a", base.Add(76*time.Second))
	assert.False(t, ok)

	// Two full buckets later the history is gone.
	ok, remaining, _ = l.take("a", base.Add(3*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestLimiter_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Second})
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	l.take("old", base)
	l.take("new", base.Add(2*time.Second))
	l.evict(base.Add(2 * time.Second))

	assert.NotContains(t, l.bucket, "old")
	assert.Contains(t, l.bucket, "new")
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		w := serve(h, "10.0.0.1:9999", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := serve(h, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "Too many requests", body["detail"])
}

func TestRateLimit_Keys(t *testing.T) {
	t.Run("remote address", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1234", nil).Code)
		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2:1234", nil).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.1:5678", nil).Code)
	})

	t.Run("forwarded for", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
		xff := map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}
		assert.Equal(t, http.StatusOK, serve(h, "192.168.1.1:4444", xff).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(h, "192.168.1.2:5555", xff).Code)
	})

	t.Run("custom key", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{
			Max:     1,
			Window:  time.Minute,
			KeyFunc: func(r *http.Request) string { return r.Header.Get("X-Access-Token") },
		})(okHandler())
		a := map[string]string{"X-Access-Token": "a"}
		assert.Equal(t, http.StatusOK, serve(h, "", a).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(h, "", a).Code)
		assert.Equal(t, http.StatusOK, serve(h, "", map[string]string{"X-Access-Token": "b"}).Code)
	})
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.9 ")
	assert.Equal(t, "203.0.113.9", ClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "unix-socket"
	assert.Equal(t, "unix-socket", ClientIP(req))
}

func TestRateLimitWithCleanup_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := RateLimitWithCleanup(ctx, RateLimitConfig{Max: 1, Window: 10 * time.Millisecond})(okHandler())
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1", nil).Code)
	cancel()
	// goleak in TestMain fails the package if the cleanup goroutine survives.
}
