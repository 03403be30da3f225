package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bustracking/bustracking/internal/api/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/send-all", http.NoBody)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPerMinute(t *testing.T) {
	cfg := middleware.PerMinute(30)
	assert.Equal(t, 30, cfg.RequestLimit)
	assert.Equal(t, 60.0, cfg.WindowLength.Seconds())
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	handler := middleware.RequestID(middleware.RateLimitByIP(middleware.PerMinute(3))(okHandler()))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.1:1234").Code, "request %d", i+1)
	}

	rec := hit(handler, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Contains(t, rec.Body.String(), "/api/v1/notifications/send-all")
}

func TestRateLimitByIP_SeparateClients(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.PerMinute(1))(okHandler())

	assert.Equal(t, http.StatusOK, hit(handler, "172.16.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "172.16.0.1:1").Code)
	assert.Equal(t, http.StatusOK, hit(handler, "172.16.0.2:1").Code)
}
