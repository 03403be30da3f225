package models

// LocationRequest is the body of POST /bus-tracking/location.
type LocationRequest struct {
	TripID    ID         `json:"trip_id"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Timestamp *Timestamp `json:"timestamp,omitempty"`
}

// LocationResponse reports the trip state after a location update.
type LocationResponse struct {
	Success          bool   `json:"success"`
	TripID           string `json:"trip_id"`
	CurrentStopIndex int    `json:"current_stop_index"`
	TotalStops       int    `json:"total_stops"`
	Status           string `json:"status"`
}

// TripMessageRequest is the body of POST /bus-tracking/notify.
type TripMessageRequest struct {
	TripID  ID     `json:"trip_id"`
	Message string `json:"message"`
	StopID  ID     `json:"stop_id,omitempty"`
}

// TripLifecycleRequest is the body of the /trip/start, /trip/pause and
// /trip/complete endpoints.
type TripLifecycleRequest struct {
	TripID  ID `json:"trip_id"`
	RouteID ID `json:"route_id"`
}

// TripStatusRequest is the body of POST /notifications/trip-status.
type TripStatusRequest struct {
	TripID ID     `json:"trip_id"`
	Status string `json:"status"`
}

// RecipientsResponse reports how many devices a notification targeted.
type RecipientsResponse struct {
	Success    bool `json:"success"`
	Recipients int  `json:"recipients"`
}

// StatusResponse reports recipients together with the resulting trip status.
type StatusResponse struct {
	Success    bool   `json:"success"`
	Recipients int    `json:"recipients"`
	Status     string `json:"status"`
}
