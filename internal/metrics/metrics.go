// Package metrics exposes domain counters in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bustracking"

// Collector owns a private registry with the service's domain metrics.
type Collector struct {
	reg *prometheus.Registry

	LocationUpdates   prometheus.Counter
	GeofenceCrossings *prometheus.CounterVec // threshold: approaching|arrived
	TripsStarted      prometheus.Counter
	TripsCompleted    prometheus.Counter
	Notifications     *prometheus.CounterVec // kind, channel
	Recipients        *prometheus.CounterVec // channel
	DeliveryFailures  *prometheus.CounterVec // channel
	EventsPublished   *prometheus.CounterVec // type, result: ok|error
	PublishDuration   prometheus.Histogram
	NATSConnected     prometheus.Gauge
	IngestMessages    *prometheus.CounterVec // type, result: ack|nack
}

// NewCollector creates the collector. activeTrips is sampled on every scrape.
func NewCollector(activeTrips func() int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		LocationUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_updates_total",
			Help:      "Location updates processed.",
		}),
		GeofenceCrossings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geofence_crossings_total",
			Help:      "First-time geofence crossings by threshold.",
		}, []string{"threshold"}),
		TripsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trips_started_total",
			Help:      "Trips that started being tracked.",
		}),
		TripsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trips_completed_total",
			Help:      "Trips completed, automatically or explicitly.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications dispatched by kind and delivery channel.",
		}, []string{"kind", "channel"}),
		Recipients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_recipients_total",
			Help:      "Recipient tokens targeted by delivery channel.",
		}, []string{"channel"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_delivery_failures_total",
			Help:      "Recipient tokens whose delivery failed.",
		}, []string{"channel"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Trip events published to NATS.",
		}, []string{"type", "result"}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_publish_duration_seconds",
			Help:      "Duration to publish a trip event.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nats_connected",
			Help:      "1 if the NATS connection is established, 0 otherwise.",
		}),
		IngestMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_messages_total",
			Help:      "Pub/Sub messages handled by type and outcome.",
		}, []string{"type", "result"}),
	}

	activeGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_trips",
		Help:      "Trips currently tracked in memory.",
	}, func() float64 {
		if activeTrips == nil {
			return 0
		}
		return float64(activeTrips())
	})

	reg.MustRegister(
		activeGauge,
		c.LocationUpdates, c.GeofenceCrossings, c.TripsStarted, c.TripsCompleted,
		c.Notifications, c.Recipients, c.DeliveryFailures,
		c.EventsPublished, c.PublishDuration, c.NATSConnected,
		c.IngestMessages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// LocationProcessed counts one processed location update.
func (c *Collector) LocationProcessed() { c.LocationUpdates.Inc() }

// GeofenceCrossed counts a first-time crossing.
func (c *Collector) GeofenceCrossed(threshold string) {
	c.GeofenceCrossings.WithLabelValues(threshold).Inc()
}

// TripStarted counts a trip entering tracking.
func (c *Collector) TripStarted() { c.TripsStarted.Inc() }

// TripCompleted counts a completed trip.
func (c *Collector) TripCompleted() { c.TripsCompleted.Inc() }

// NotificationSent counts one dispatched notification and its recipients.
func (c *Collector) NotificationSent(kind, channel string, recipients int) {
	c.Notifications.WithLabelValues(kind, channel).Inc()
	c.Recipients.WithLabelValues(channel).Add(float64(recipients))
}

// DeliveryFailed counts failed recipient deliveries.
func (c *Collector) DeliveryFailed(channel string, count int) {
	c.DeliveryFailures.WithLabelValues(channel).Add(float64(count))
}

// EventPublished records a NATS publish.
func (c *Collector) EventPublished(eventType string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.EventsPublished.WithLabelValues(eventType, result).Inc()
	c.PublishDuration.Observe(d.Seconds())
}

// NATSSetConnected reflects the NATS connection state.
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}

// IngestHandled counts a Pub/Sub message outcome.
func (c *Collector) IngestHandled(msgType string, acked bool) {
	result := "nack"
	if acked {
		result = "ack"
	}
	c.IngestMessages.WithLabelValues(msgType, result).Inc()
}
