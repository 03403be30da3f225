package tracking

import (
	"fmt"

	"github.com/bustracking/bustracking/pkg/geo"
)

// Default geofence radii in meters.
const (
	DefaultApproachingRadius = 500.0
	DefaultArrivedRadius     = 20.0
)

// GeofenceConfig holds the two radii evaluated around every stop.
type GeofenceConfig struct {
	// ApproachingRadius triggers the "bus is coming" notification.
	ApproachingRadius float64

	// ArrivedRadius triggers arrival and advances the trip's stop index.
	ArrivedRadius float64

	// ApproachAllStops evaluates the approaching radius on every stop instead
	// of only the first one.
	ApproachAllStops bool
}

// DefaultGeofenceConfig returns the 500 m / 20 m two-threshold configuration.
func DefaultGeofenceConfig() GeofenceConfig {
	return GeofenceConfig{
		ApproachingRadius: DefaultApproachingRadius,
		ArrivedRadius:     DefaultArrivedRadius,
	}
}

// Validate checks that both radii are positive and properly nested.
func (c GeofenceConfig) Validate() error {
	if c.ApproachingRadius <= 0 || c.ArrivedRadius <= 0 {
		return fmt.Errorf("geofence radii must be positive (approaching=%v, arrived=%v)", c.ApproachingRadius, c.ArrivedRadius)
	}
	if c.ArrivedRadius >= c.ApproachingRadius {
		return fmt.Errorf("arrived radius %v must be smaller than approaching radius %v", c.ArrivedRadius, c.ApproachingRadius)
	}
	return nil
}

// intent is a notification decided under the trip lock and delivered after commit.
type intent struct {
	message Message
	// stopID selects the stop's recipients; empty means every recipient on the route.
	stopID string
	event  Event
}

// evaluate applies one position to the trip, marking fired keys and advancing the
// stop index. It returns the notifications to deliver and whether the trip
// completed on this update. It performs no I/O.
func (c GeofenceConfig) evaluate(t *Trip, fired FiredSet, pos geo.Coordinate) ([]intent, bool) {
	var intents []intent

	for i, stop := range t.Stops {
		distance := geo.Distance(pos, stop.Position())

		if (i == 0 || c.ApproachAllStops) && distance <= c.ApproachingRadius {
			key := FiredKey{TripID: t.TripID, StopID: stop.StopID, Threshold: ThresholdApproaching}
			if !fired.Has(key) {
				fired.Add(key)
				intents = append(intents, intent{
					message: approachingMessage(t, stop, distance),
					stopID:  stop.StopID,
					event:   stopEvent(EventStopApproaching, t, i, distance),
				})
			}
		}

		if distance <= c.ArrivedRadius {
			key := FiredKey{TripID: t.TripID, StopID: stop.StopID, Threshold: ThresholdArrived}
			if fired.Has(key) {
				continue
			}
			fired.Add(key)
			if i > t.CurrentStopIndex {
				t.CurrentStopIndex = i
			}

			intents = append(intents, intent{
				message: arrivedMessage(t, stop),
				stopID:  stop.StopID,
				event:   stopEvent(EventStopArrived, t, i, distance),
			})
			if i+1 < len(t.Stops) {
				next := t.Stops[i+1]
				intents = append(intents, intent{
					message: nextStopMessage(t, stop, next),
					stopID:  next.StopID,
				})
			}
		}
	}

	if len(t.Stops) > 0 && t.CurrentStopIndex == len(t.Stops)-1 && t.Status != StatusCompleted {
		t.Status = StatusCompleted
		return intents, true
	}

	return intents, false
}
