package tracking

import (
	"context"
	"time"
)

// EventType names a trip event published to the event bus.
type EventType string

const (
	EventTripStarted     EventType = "trip.started"
	EventTripPaused      EventType = "trip.paused"
	EventTripCompleted   EventType = "trip.completed"
	EventTripStatus      EventType = "trip.status"
	EventStopApproaching EventType = "stop.approaching"
	EventStopArrived     EventType = "stop.arrived"
)

// Event describes something that happened to a trip.
type Event struct {
	Type           EventType `json:"type"`
	TripID         string    `json:"trip_id"`
	RouteID        string    `json:"route_id"`
	StopID         string    `json:"stop_id,omitempty"`
	StopName       string    `json:"stop_name,omitempty"`
	StopIndex      *int      `json:"stop_index,omitempty"`
	DistanceMeters *float64  `json:"distance_m,omitempty"`
	Status         string    `json:"status,omitempty"`
	Recipients     int       `json:"recipients"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EventPublisher fans trip events out to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

func stopEvent(typ EventType, t *Trip, index int, distance float64) Event {
	stop := t.Stops[index]
	return Event{
		Type:           typ,
		TripID:         t.TripID,
		RouteID:        t.RouteID,
		StopID:         stop.StopID,
		StopName:       stop.StopName,
		StopIndex:      &index,
		DistanceMeters: &distance,
		Status:         string(t.Status),
	}
}

func tripEvent(typ EventType, tripID, routeID, status string) Event {
	return Event{
		Type:    typ,
		TripID:  tripID,
		RouteID: routeID,
		Status:  status,
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
