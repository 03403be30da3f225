package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bustracking/bustracking/internal/api/middleware"
	"github.com/bustracking/bustracking/internal/api/models"
	"github.com/bustracking/bustracking/internal/api/response"
)

// serve runs fn behind the RequestID middleware so the context carries an id.
func serve(t *testing.T, method, path string, fn http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	middleware.RequestID(fn).ServeHTTP(rec, httptest.NewRequest(method, path, http.NoBody))
	return rec
}

func TestJSON_IncludesRequestID(t *testing.T) {
	rec := serve(t, http.MethodGet, "/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, r, map[string]string{"status": "OK"})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}

func TestJSON_WithoutRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusCreated, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Request-Id"))
	assert.Empty(t, rec.Body.String())
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  http.HandlerFunc
		status int
		title  string
	}{
		{
			name: "bad request",
			write: func(w http.ResponseWriter, r *http.Request) {
				response.BadRequest(w, r, "Missing required field: route_id", []models.FieldError{{Field: "route_id", Message: "route_id is required"}})
			},
			status: http.StatusBadRequest,
			title:  "Validation error",
		},
		{
			name:   "not found",
			write:  func(w http.ResponseWriter, r *http.Request) { response.NotFound(w, r, "No FCM tokens found") },
			status: http.StatusNotFound,
			title:  "Not found",
		},
		{
			name:   "internal",
			write:  func(w http.ResponseWriter, r *http.Request) { response.InternalError(w, r, "boom") },
			status: http.StatusInternalServerError,
			title:  "Internal server error",
		},
		{
			name:   "bad gateway",
			write:  func(w http.ResponseWriter, r *http.Request) { response.BadGateway(w, r, "backend down") },
			status: http.StatusBadGateway,
			title:  "Upstream unavailable",
		},
		{
			name:   "unavailable",
			write:  func(w http.ResponseWriter, r *http.Request) { response.ServiceUnavailable(w, r, "draining") },
			status: http.StatusServiceUnavailable,
			title:  "Service unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, http.MethodPost, "/api/v1/x", tt.write)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var p models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, tt.title, p.Error)
			assert.NotEmpty(t, p.Message)
			assert.Equal(t, "/api/v1/x", p.Instance)
			assert.Equal(t, rec.Header().Get("X-Request-Id"), p.RequestID)
		})
	}
}

func TestTooManyRequests_SetsRetryAfter(t *testing.T) {
	rec := serve(t, http.MethodPost, "/api/v1/notifications/send-all", func(w http.ResponseWriter, r *http.Request) {
		response.TooManyRequests(w, r, "slow down", 60)
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}
