package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bustracking/bustracking/internal/metrics"
)

func TestCollector_DomainCounters(t *testing.T) {
	c := metrics.NewCollector(func() int { return 3 })

	c.LocationProcessed()
	c.LocationProcessed()
	c.GeofenceCrossed("arrived")
	c.TripStarted()
	c.TripCompleted()
	c.NotificationSent("arrived", "relay", 4)
	c.NotificationSent("arrived", "relay", 2)
	c.DeliveryFailed("fcm", 1)
	c.EventPublished("stop.arrived", time.Millisecond, nil)
	c.EventPublished("stop.arrived", time.Millisecond, errors.New("closed"))
	c.NATSSetConnected(true)
	c.IngestHandled("location_update", true)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.LocationUpdates))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.GeofenceCrossings.WithLabelValues("arrived")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.TripsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.TripsCompleted))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.Notifications.WithLabelValues("arrived", "relay")))
	assert.Equal(t, float64(6), testutil.ToFloat64(c.Recipients.WithLabelValues("relay")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.DeliveryFailures.WithLabelValues("fcm")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.EventsPublished.WithLabelValues("stop.arrived", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.NATSConnected))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.IngestMessages.WithLabelValues("location_update", "ack")))
}

func TestCollector_Handler(t *testing.T) {
	c := metrics.NewCollector(func() int { return 7 })
	c.LocationProcessed()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bustracking_active_trips 7")
	assert.Contains(t, string(body), "bustracking_location_updates_total 1")
}
