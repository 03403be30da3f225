// Package worker consumes queued location updates and trip status changes from
// Pub/Sub and feeds them into the tracking engine.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bustracking/bustracking/internal/api/models"
	"github.com/bustracking/bustracking/internal/tracking"
	"github.com/bustracking/bustracking/pkg/geo"
)

// Message types carried in the "type" field.
const (
	TypeLocationUpdate = "location_update"
	TypeTripStatus     = "trip_status"
)

// Processor is the subset of the tracking engine the worker drives.
type Processor interface {
	ProcessLocation(ctx context.Context, u tracking.LocationUpdate) (*tracking.UpdateResult, error)
	NotifyTripStatus(ctx context.Context, tripID, status string) (*tracking.LifecycleResult, error)
}

// Metrics receives message outcomes.
type Metrics interface {
	IngestHandled(msgType string, acked bool)
}

// Message is the JSON payload of one queued update.
type Message struct {
	Type      string     `json:"type"`
	TripID    string     `json:"trip_id"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Status    string     `json:"status,omitempty"`
}

// IngestConfig holds the dependencies of an Ingest.
type IngestConfig struct {
	Processor Processor
	Metrics   Metrics
	Logger    zerolog.Logger
}

// Ingest decodes queued messages and applies them to the engine.
type Ingest struct {
	processor Processor
	metrics   Metrics
	logger    zerolog.Logger
}

// NewIngest creates an Ingest.
func NewIngest(cfg IngestConfig) *Ingest {
	return &Ingest{
		processor: cfg.Processor,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With().Str("component", "ingest").Logger(),
	}
}

// Handle applies one message and reports whether it should be acknowledged.
// Malformed or permanently failing messages are acknowledged so they are not
// redelivered; transient failures are not.
func (i *Ingest) Handle(ctx context.Context, data []byte) bool {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		i.logger.Error().Err(err).Msg("failed to parse message")
		i.record("invalid", true)
		return true
	}

	var err error
	switch msg.Type {
	case TypeLocationUpdate:
		err = i.location(ctx, msg)
	case TypeTripStatus:
		_, err = i.processor.NotifyTripStatus(ctx, msg.TripID, msg.Status)
	default:
		i.logger.Warn().Str("type", msg.Type).Msg("unknown message type")
		i.record("unknown", true)
		return true
	}

	ack := err == nil || permanent(err)
	if err != nil {
		event := i.logger.Warn()
		if !ack {
			event = i.logger.Error()
		}
		event.Err(err).
			Str("type", msg.Type).
			Str("trip_id", msg.TripID).
			Bool("redeliver", !ack).
			Msg("message processing failed")
	}

	i.record(msg.Type, ack)
	return ack
}

func (i *Ingest) location(ctx context.Context, msg Message) error {
	if msg.Latitude == nil || msg.Longitude == nil {
		return &tracking.ValidationError{Errors: []models.FieldError{
			{Field: "latitude/longitude", Message: "latitude and longitude are required", Code: "REQUIRED"},
		}}
	}

	u := tracking.LocationUpdate{
		TripID:   strings.TrimSpace(msg.TripID),
		Position: geo.Coordinate{Lat: *msg.Latitude, Lon: *msg.Longitude},
	}
	if msg.Timestamp != nil {
		u.Timestamp = *msg.Timestamp
	}

	res, err := i.processor.ProcessLocation(ctx, u)
	if err != nil {
		return err
	}

	i.logger.Debug().
		Str("trip_id", res.TripID).
		Int("current_stop_index", res.CurrentStopIndex).
		Str("status", string(res.Status)).
		Msg("queued location processed")
	return nil
}

func (i *Ingest) record(msgType string, ack bool) {
	if i.metrics != nil {
		i.metrics.IngestHandled(msgType, ack)
	}
}

// permanent reports whether redelivery cannot succeed.
func permanent(err error) bool {
	var vErr *tracking.ValidationError
	return errors.As(err, &vErr) ||
		errors.Is(err, tracking.ErrTripNotFound) ||
		errors.Is(err, tracking.ErrNoRecipients)
}
