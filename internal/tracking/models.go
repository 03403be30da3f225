package tracking

import (
	"encoding/json"
	"time"

	"github.com/bustracking/bustracking/pkg/geo"
)

// Status is the lifecycle status of a trip.
type Status string

const (
	StatusOngoing   Status = "ONGOING"
	StatusStarted   Status = "STARTED"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusDelayed   Status = "DELAYED"
)

// IsTerminal reports whether location updates are ignored in this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsKnown reports whether s is one of the lifecycle statuses above.
func (s Status) IsKnown() bool {
	switch s {
	case StatusOngoing, StatusStarted, StatusPaused, StatusCompleted, StatusCancelled, StatusDelayed:
		return true
	}
	return false
}

// Threshold identifies one of the two geofence radii around a stop.
type Threshold string

const (
	ThresholdApproaching Threshold = "APPROACHING"
	ThresholdArrived     Threshold = "ARRIVED"
)

// Stop is a pickup point on a route.
type Stop struct {
	StopID          string
	StopName        string
	Latitude        float64
	Longitude       float64
	PickupStopOrder int
}

// Position returns the stop's coordinate.
func (s Stop) Position() geo.Coordinate {
	return geo.Coordinate{Lat: s.Latitude, Lon: s.Longitude}
}

// TripInfo is the trip metadata held by the backend.
type TripInfo struct {
	TripID  string
	RouteID string
	Status  string
}

// Trip is the in-memory tracking state of one trip. Stops are fixed at
// initialization and CurrentStopIndex only ever grows.
type Trip struct {
	TripID           string
	RouteID          string
	Stops            []Stop
	CurrentStopIndex int
	Status           Status
	StartedAt        time.Time
	LastPosition     *geo.Coordinate
	LastUpdateAt     time.Time
}

// TotalStops returns the number of stops on the trip.
func (t *Trip) TotalStops() int {
	return len(t.Stops)
}

// clone copies the mutable parts of t. Stops are shared since they never change.
func (t *Trip) clone() *Trip {
	c := *t
	if t.LastPosition != nil {
		pos := *t.LastPosition
		c.LastPosition = &pos
	}
	return &c
}

// FiredKey identifies a notification that has already been sent.
type FiredKey struct {
	TripID    string
	StopID    string
	Threshold Threshold
}

// FiredSet records which geofence notifications a trip has already emitted.
type FiredSet map[FiredKey]struct{}

// Has reports whether key was already fired.
func (f FiredSet) Has(key FiredKey) bool {
	_, ok := f[key]
	return ok
}

// Add marks key as fired.
func (f FiredSet) Add(key FiredKey) {
	f[key] = struct{}{}
}

func (f FiredSet) clone() FiredSet {
	c := make(FiredSet, len(f))
	for k := range f {
		c[k] = struct{}{}
	}
	return c
}

// RouteTokens is the normalized recipient directory of a route.
type RouteTokens struct {
	RouteID string
	// All holds every token on the route, deduplicated in first-seen order.
	All []string
	// ByStop holds the tokens registered at each stop.
	ByStop map[string][]string
	// Raw is the upstream payload, kept for diagnostics.
	Raw json.RawMessage
}

// ForStop returns the tokens registered at stopID.
func (r *RouteTokens) ForStop(stopID string) []string {
	if r == nil {
		return nil
	}
	return r.ByStop[stopID]
}

// LocationUpdate is one reported vehicle position.
type LocationUpdate struct {
	TripID    string
	Position  geo.Coordinate
	Timestamp time.Time
}

// UpdateResult is the trip state returned after processing a location update.
type UpdateResult struct {
	TripID           string
	CurrentStopIndex int
	TotalStops       int
	Status           Status
}

// LifecycleResult is returned by explicit trip transitions and status notifications.
type LifecycleResult struct {
	TripID     string
	Status     Status
	Recipients int
}
