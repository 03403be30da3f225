package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bustracking/bustracking/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "http://localhost:8080/api/v1", cfg.BackendURL)
	assert.Equal(t, cfg.BackendURL, cfg.RelayURL)
	assert.True(t, cfg.RelayEnabled)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, uint64(2), cfg.UpstreamMaxRetries)
	assert.Equal(t, 30*time.Second, cfg.TokenCacheTTL)
	assert.Equal(t, 500.0, cfg.Geofence.ApproachingRadius)
	assert.Equal(t, 20.0, cfg.Geofence.ArrivedRadius)
	assert.False(t, cfg.Geofence.ApproachAllStops)
	assert.Equal(t, "bus_tracking_channel", cfg.FCMChannelID)
	assert.Equal(t, 10, cfg.PushConcurrency)
	assert.Equal(t, config.HistoryMemory, cfg.HistoryStore)
	assert.Equal(t, 600, cfg.RateLimitPerMinute)
	assert.Equal(t, 30, cfg.BroadcastRateLimitPerMinute)
	assert.Equal(t, 12*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.FCMEnabled())
	assert.Empty(t, cfg.NATSURL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("MAIN_BACKEND_URL", "http://backend:8080/api/v1")
	t.Setenv("NOTIFICATION_RELAY_ENABLED", "false")
	t.Setenv("UPSTREAM_TIMEOUT", "3")
	t.Setenv("UPSTREAM_MAX_RETRIES", "0")
	t.Setenv("TOKEN_CACHE_TTL", "1m")
	t.Setenv("APPROACHING_RADIUS", "300")
	t.Setenv("ARRIVED_RADIUS", "15.5")
	t.Setenv("APPROACH_ALL_STOPS", "yes")
	t.Setenv("FIREBASE_PROJECT_ID", "p")
	t.Setenv("FIREBASE_CLIENT_EMAIL", "svc@p")
	t.Setenv("FIREBASE_PRIVATE_KEY", "key")
	t.Setenv("HISTORY_STORE", "Postgres")
	t.Setenv("DB_PORT", "6543")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "http://backend:8080/api/v1", cfg.RelayURL)
	assert.False(t, cfg.RelayEnabled)
	assert.Equal(t, 3*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, uint64(0), cfg.UpstreamMaxRetries)
	assert.Equal(t, time.Minute, cfg.TokenCacheTTL)
	assert.Equal(t, 300.0, cfg.Geofence.ApproachingRadius)
	assert.Equal(t, 15.5, cfg.Geofence.ArrivedRadius)
	assert.True(t, cfg.Geofence.ApproachAllStops)
	assert.True(t, cfg.FCMEnabled())
	assert.Equal(t, config.HistoryPostgres, cfg.HistoryStore)
	assert.Equal(t, 6543, cfg.Database.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad duration", map[string]string{"UPSTREAM_TIMEOUT": "soon"}, "UPSTREAM_TIMEOUT"},
		{"bad bool", map[string]string{"APPROACH_ALL_STOPS": "maybe"}, "APPROACH_ALL_STOPS"},
		{"negative retries", map[string]string{"UPSTREAM_MAX_RETRIES": "-1"}, "UPSTREAM_MAX_RETRIES"},
		{"radii inverted", map[string]string{"APPROACHING_RADIUS": "10", "ARRIVED_RADIUS": "50"}, "arrived radius"},
		{"zero request timeout", map[string]string{"REQUEST_TIMEOUT": "0s"}, "REQUEST_TIMEOUT"},
		{"history store", map[string]string{"HISTORY_STORE": "redis"}, "HISTORY_STORE"},
		{"pubsub half configured", map[string]string{"PUBSUB_PROJECT_ID": "p"}, "PUBSUB_LOCATION_SUBSCRIPTION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
