package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bustracking/bustracking/internal/api/models"
	"github.com/bustracking/bustracking/internal/api/response"
	"github.com/bustracking/bustracking/internal/notification"
	"github.com/bustracking/bustracking/internal/tracking"
	"github.com/bustracking/bustracking/pkg/geo"
)

// TrackingHandler serves location ingestion, trip messages and trip lifecycle.
type TrackingHandler struct {
	tracker       Tracker
	notifications Notifications
	logger        zerolog.Logger
}

// NewTrackingHandler creates a TrackingHandler.
func NewTrackingHandler(tracker Tracker, notifications Notifications, logger zerolog.Logger) *TrackingHandler {
	return &TrackingHandler{
		tracker:       tracker,
		notifications: notifications,
		logger:        logger.With().Str("component", "tracking_handler").Logger(),
	}
}

// Location handles POST /bus-tracking/location.
func (h *TrackingHandler) Location(w http.ResponseWriter, r *http.Request) {
	var req models.LocationRequest
	if err := decode(r, w, &req); err != nil {
		invalidBody(w, r, err)
		return
	}

	var missing []models.FieldError
	for _, f := range []struct {
		name    string
		present bool
	}{
		{"trip_id", req.TripID != ""},
		{"latitude", req.Latitude != nil},
		{"longitude", req.Longitude != nil},
	} {
		if !f.present {
			missing = append(missing, models.FieldError{Field: f.name, Message: f.name + " is required", Code: "REQUIRED"})
		}
	}
	if len(missing) > 0 {
		response.BadRequest(w, r, "Missing required fields: trip_id, latitude, longitude", missing)
		return
	}

	update := tracking.LocationUpdate{
		TripID:   req.TripID.String(),
		Position: geo.Coordinate{Lat: *req.Latitude, Lon: *req.Longitude},
	}
	if req.Timestamp != nil {
		update.Timestamp = req.Timestamp.Time()
	}

	result, err := h.tracker.ProcessLocation(r.Context(), update)
	if err != nil {
		var verr *tracking.ValidationError
		if errors.As(err, &verr) {
			response.BadRequest(w, r, validationMessage(verr.Errors), verr.Errors)
			return
		}
		// Without trip metadata nothing can be evaluated, so any failure here is a 500.
		internalError(w, r, h.logger, err)
		return
	}

	response.OK(w, r, models.LocationResponse{
		Success:          true,
		TripID:           result.TripID,
		CurrentStopIndex: result.CurrentStopIndex,
		TotalStops:       result.TotalStops,
		Status:           string(result.Status),
	})
}

// Notify handles POST /bus-tracking/notify.
func (h *TrackingHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req models.TripMessageRequest
	if err := decode(r, w, &req); err != nil {
		invalidBody(w, r, err)
		return
	}

	recipients, err := h.notifications.NotifyTrip(r.Context(), notification.TripMessageInput{
		TripID:  req.TripID.String(),
		Message: req.Message,
		StopID:  req.StopID.String(),
	})
	if err != nil {
		writeError(w, r, h.logger, err, "No FCM tokens found for this trip")
		return
	}

	response.OK(w, r, models.RecipientsResponse{Success: true, Recipients: recipients})
}

// StartTrip handles POST /trip/start.
func (h *TrackingHandler) StartTrip(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.tracker.StartTrip)
}

// PauseTrip handles POST /trip/pause.
func (h *TrackingHandler) PauseTrip(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.tracker.PauseTrip)
}

// CompleteTrip handles POST /trip/complete.
func (h *TrackingHandler) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.tracker.CompleteTrip)
}

type lifecycleFunc func(ctx context.Context, tripID, routeID string) (*tracking.LifecycleResult, error)

func (h *TrackingHandler) lifecycle(w http.ResponseWriter, r *http.Request, fn lifecycleFunc) {
	var req models.TripLifecycleRequest
	if err := decode(r, w, &req); err != nil {
		invalidBody(w, r, err)
		return
	}

	result, err := fn(r.Context(), req.TripID.String(), req.RouteID.String())
	if err != nil {
		writeError(w, r, h.logger, err, "No FCM tokens found for this route")
		return
	}

	response.OK(w, r, models.StatusResponse{
		Success:    true,
		Recipients: result.Recipients,
		Status:     string(result.Status),
	})
}
