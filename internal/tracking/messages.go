package tracking

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind labels a notification for history, metrics and client-side routing.
type Kind string

const (
	KindTripStarted   Kind = "trip_started"
	KindApproaching   Kind = "approaching"
	KindArrived       Kind = "arrived"
	KindNextStop      Kind = "next_stop_warning"
	KindTripCompleted Kind = "trip_completed"
	KindTripPaused    Kind = "trip_paused"
	KindTripStatus    Kind = "trip_status"
	KindCustom        Kind = "custom"
)

// Message is the user-facing content of one notification.
type Message struct {
	Kind  Kind
	Title string
	Body  string
	Data  map[string]any
}

func tripStartedMessage(t *Trip, explicit bool) Message {
	body := "Bus has started the trip"
	if explicit {
		body = "Your bus has started the trip"
	}
	return Message{
		Kind:  KindTripStarted,
		Title: "🚌 Bus Started",
		Body:  body,
		Data: map[string]any{
			"trip_id":  t.TripID,
			"route_id": t.RouteID,
			"status":   string(StatusStarted),
		},
	}
}

func approachingMessage(t *Trip, stop Stop, distance float64) Message {
	return Message{
		Kind:  KindApproaching,
		Title: "🚌 Bus is Coming!",
		Body:  fmt.Sprintf("Bus is on the way to %s. It will arrive in a few minutes.", stop.StopName),
		Data: map[string]any{
			"trip_id":   t.TripID,
			"stop_id":   stop.StopID,
			"stop_name": stop.StopName,
			"type":      string(KindApproaching),
			"distance":  strconv.Itoa(int(math.Round(distance))),
		},
	}
}

func arrivedMessage(t *Trip, stop Stop) Message {
	return Message{
		Kind:  KindArrived,
		Title: "🚌 Bus Arrived!",
		Body:  fmt.Sprintf("Bus has arrived at %s. Please come to the stop.", stop.StopName),
		Data: map[string]any{
			"trip_id":   t.TripID,
			"stop_id":   stop.StopID,
			"stop_name": stop.StopName,
			"type":      string(KindArrived),
		},
	}
}

func nextStopMessage(t *Trip, reached, next Stop) Message {
	return Message{
		Kind:  KindNextStop,
		Title: "🚌 Bus is Coming!",
		Body:  fmt.Sprintf("Bus has reached %s and is now heading to %s. Get ready!", reached.StopName, next.StopName),
		Data: map[string]any{
			"trip_id":       t.TripID,
			"stop_id":       next.StopID,
			"stop_name":     next.StopName,
			"previous_stop": reached.StopName,
			"type":          string(KindNextStop),
		},
	}
}

func tripCompletedMessage(t *Trip, explicit bool) Message {
	body := "Bus has completed the trip. Thank you!"
	if explicit {
		body = "Your bus has completed the trip"
	}
	return Message{
		Kind:  KindTripCompleted,
		Title: "✅ Trip Completed",
		Body:  body,
		Data: map[string]any{
			"trip_id":  t.TripID,
			"route_id": t.RouteID,
			"status":   string(StatusCompleted),
		},
	}
}

func tripPausedMessage(tripID, routeID string) Message {
	return Message{
		Kind:  KindTripPaused,
		Title: "⏸️ Bus Paused",
		Body:  "Your bus has paused temporarily",
		Data: map[string]any{
			"trip_id":  tripID,
			"route_id": routeID,
			"status":   string(StatusPaused),
		},
	}
}

// StatusMessage returns the notification sent for an explicit trip status change.
// Status matching is case-insensitive; unknown statuses get a generic update.
func StatusMessage(tripID, routeID, status string) Message {
	var title, body string
	switch Status(strings.ToUpper(status)) {
	case StatusStarted:
		title, body = "🚌 Bus Started", "Bus has started the trip on Route "+routeID
	case StatusOngoing:
		title, body = "🚌 Bus On Route", "Bus is currently on the way"
	case StatusCompleted:
		title, body = "✅ Trip Completed", "Bus has completed the trip"
	case StatusCancelled:
		title, body = "❌ Trip Cancelled", "Trip has been cancelled. Please check for updates."
	case StatusDelayed:
		title, body = "⏰ Bus Delayed", "Bus is running late. We apologize for the inconvenience."
	default:
		title, body = "🚌 Trip Update", "Trip status: "+status
	}

	return Message{
		Kind:  KindTripStatus,
		Title: title,
		Body:  body,
		Data: map[string]any{
			"trip_id":  tripID,
			"route_id": routeID,
			"status":   status,
		},
	}
}

// CustomMessage returns an operator-authored trip notification.
func CustomMessage(tripID, body string) Message {
	return Message{
		Kind:  KindCustom,
		Title: "Bus Update",
		Body:  body,
		Data: map[string]any{
			"trip_id": tripID,
			"custom":  "true",
		},
	}
}
