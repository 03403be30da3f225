package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bustracking/bustracking/internal/push"
	"github.com/bustracking/bustracking/internal/push/relay"
)

func TestClient_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/notifications/send", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []any{"tok-a", "tok-b"}, body["fcm_tokens"])
		assert.Equal(t, "🚌 Bus Arrived!", body["title"])
		assert.Equal(t, "Bus has arrived at Main St.", body["body"])
		assert.Equal(t, map[string]any{"trip_id": "T1", "distance": float64(12)}, body["data"])

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := relay.NewClient(relay.ClientConfig{BaseURL: server.URL + "/api/v1/", Logger: zerolog.Nop()})
	assert.Equal(t, "relay", client.Name())

	err := client.Send(context.Background(), []string{"tok-a", "tok-b"}, push.Notification{
		Title: "🚌 Bus Arrived!",
		Body:  "Bus has arrived at Main St.",
		Data:  map[string]any{"trip_id": "T1", "distance": 12},
	})
	require.NoError(t, err)
}

func TestClient_Send_Non2xxIsErrorWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"fcm down"}`))
	}))
	defer server.Close()

	client := relay.NewClient(relay.ClientConfig{BaseURL: server.URL, Logger: zerolog.Nop()})

	err := client.Send(context.Background(), []string{"tok"}, push.Notification{Title: "t", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "fcm down")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Send_NilDataIsEmptyObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `{}`, string(body["data"]))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := relay.NewClient(relay.ClientConfig{BaseURL: server.URL, Logger: zerolog.Nop()})
	require.NoError(t, client.Send(context.Background(), []string{"tok"}, push.Notification{Title: "t", Body: "b"}))
}
