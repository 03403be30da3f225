package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// UpstreamMetrics records calls made to the main backend and the push relay,
// plus hits and misses of the route token cache.
type UpstreamMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
}

// NewUpstreamMetrics creates the instruments on the global meter provider.
func NewUpstreamMetrics() (*UpstreamMetrics, error) {
	return NewUpstreamMetricsWithMeter(otel.Meter(InstrumentationName))
}

// NewUpstreamMetricsWithMeter creates the instruments on the given meter.
func NewUpstreamMetricsWithMeter(meter metric.Meter) (*UpstreamMetrics, error) {
	requestDuration, err := meter.Float64Histogram(
		"upstream.request.duration",
		metric.WithDescription("Duration of upstream requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"upstream.request.total",
		metric.WithDescription("Total number of upstream requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"upstream.cache.hit",
		metric.WithDescription("Number of upstream cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter(
		"upstream.cache.miss",
		metric.WithDescription("Number of upstream cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	return &UpstreamMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}, nil
}

// RecordRequest records one upstream call.
func (m *UpstreamMetrics) RecordRequest(upstream, operation string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("upstream.name", upstream),
		attribute.String("upstream.operation", operation),
		attribute.Bool("error", err != nil),
	)
	// Detached from the request context so a cancelled caller still counts.
	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), attrs)
	m.requestTotal.Add(ctx, 1, attrs)
}

// RecordCacheHit counts a cache hit.
func (m *UpstreamMetrics) RecordCacheHit(upstream, operation string) {
	m.cacheHits.Add(context.Background(), 1, cacheAttrs(upstream, operation))
}

// RecordCacheMiss counts a cache miss.
func (m *UpstreamMetrics) RecordCacheMiss(upstream, operation string) {
	m.cacheMisses.Add(context.Background(), 1, cacheAttrs(upstream, operation))
}

func cacheAttrs(upstream, operation string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("upstream.name", upstream),
		attribute.String("upstream.operation", operation),
	)
}
