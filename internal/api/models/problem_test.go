package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bustracking/bustracking/internal/api/models"
)

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "Missing required fields: trip_id, latitude, longitude", []models.FieldError{
		{Field: "trip_id", Message: "trip_id is required", Code: "REQUIRED"},
	}).WithInstance("/api/v1/bus-tracking/location")

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Equal(t, "Validation error", body["error"])
	assert.Equal(t, "Missing required fields: trip_id, latitude, longitude", body["message"])
	assert.Equal(t, "/api/v1/bus-tracking/location", body["instance"])
	assert.Equal(t, "req_test123", body["request_id"])
	assert.EqualValues(t, 400, body["status"])
	assert.Len(t, body["errors"], 1)
	assert.NotContains(t, body, "stack")
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name    string
		problem *models.Problem
		typ     string
		title   string
		status  int
	}{
		{"not found", models.NewNotFound("r", "m"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"too many", models.NewTooManyRequests("r", "m"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("r", "m"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"bad gateway", models.NewBadGateway("r", "m"), models.ProblemTypeBadGateway, "Upstream unavailable", http.StatusBadGateway},
		{"unavailable", models.NewServiceUnavailable("r", "m"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.problem.Type)
			assert.Equal(t, tt.title, tt.problem.Title)
			assert.Equal(t, tt.title, tt.problem.Error)
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, "m", tt.problem.Message)
			assert.Equal(t, "r", tt.problem.RequestID)
		})
	}
}

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want models.ID
	}{
		{`{"trip_id":"trip-1"}`, "trip-1"},
		{`{"trip_id":42}`, "42"},
		{`{"trip_id":null}`, ""},
		{`{}`, ""},
	}

	for _, tt := range tests {
		var req models.TripLifecycleRequest
		require.NoError(t, json.Unmarshal([]byte(tt.in), &req), tt.in)
		assert.Equal(t, tt.want, req.TripID, tt.in)
	}

	var req models.TripLifecycleRequest
	assert.Error(t, json.Unmarshal([]byte(`{"trip_id":{"x":1}}`), &req))
}

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	var req models.LocationRequest
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp":"2026-03-01T08:15:00Z"}`), &req))
	require.NotNil(t, req.Timestamp)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 15, 0, 0, time.UTC), req.Timestamp.Time().UTC())

	req = models.LocationRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp":1772352900000}`), &req))
	require.NotNil(t, req.Timestamp)
	assert.Equal(t, int64(1772352900000), req.Timestamp.Time().UnixMilli())

	assert.Error(t, json.Unmarshal([]byte(`{"timestamp":"yesterday"}`), &req))
}
