// Package handler implements the HTTP handlers of the bus tracking API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bustracking/bustracking/internal/api/middleware"
	"github.com/bustracking/bustracking/internal/api/models"
	"github.com/bustracking/bustracking/internal/api/response"
	"github.com/bustracking/bustracking/internal/backend"
	"github.com/bustracking/bustracking/internal/notification"
	"github.com/bustracking/bustracking/internal/tracking"
)

const maxBodyBytes = 1 << 20

// Tracker is the trip engine as seen by the HTTP layer.
type Tracker interface {
	ProcessLocation(ctx context.Context, u tracking.LocationUpdate) (*tracking.UpdateResult, error)
	StartTrip(ctx context.Context, tripID, routeID string) (*tracking.LifecycleResult, error)
	PauseTrip(ctx context.Context, tripID, routeID string) (*tracking.LifecycleResult, error)
	CompleteTrip(ctx context.Context, tripID, routeID string) (*tracking.LifecycleResult, error)
	NotifyTripStatus(ctx context.Context, tripID, status string) (*tracking.LifecycleResult, error)
}

// Notifications is the ad-hoc notification service as seen by the HTTP layer.
type Notifications interface {
	Send(ctx context.Context, in notification.SendInput) (int, error)
	SendAll(ctx context.Context, in notification.BroadcastInput) (int, error)
	TestRoute(ctx context.Context, in notification.TestRouteInput) (*notification.TestRouteResult, error)
	NotifyTrip(ctx context.Context, in notification.TripMessageInput) (int, error)
	InspectRoute(ctx context.Context, routeID string) (*tracking.RouteTokens, error)
}

// decode reads a JSON request body. An empty body decodes to the zero value.
func decode(r *http.Request, w http.ResponseWriter, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeError maps domain errors onto Problem responses. notFound is the
// message used when a request resolved to no recipients.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error, notFound string) {
	var verr *tracking.ValidationError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, r, validationMessage(verr.Errors), verr.Errors)
	case errors.Is(err, tracking.ErrNoRecipients):
		response.NotFound(w, r, notFound)
	case errors.Is(err, tracking.ErrTripNotFound):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, backend.ErrUpstreamUnavailable):
		log.Warn().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("upstream unavailable")
		response.BadGateway(w, r, err.Error())
	default:
		internalError(w, r, log, err)
	}
}

func internalError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	log.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	response.InternalError(w, r, err.Error())
}

func validationMessage(errs []models.FieldError) string {
	var missing []string
	for _, e := range errs {
		if e.Code == "REQUIRED" {
			missing = append(missing, e.Field)
		}
	}
	switch {
	case len(missing) == 1:
		return "Missing required field: " + missing[0]
	case len(missing) > 1:
		return "Missing required fields: " + strings.Join(missing, ", ")
	case len(errs) > 0:
		return errs[0].Message
	default:
		return "invalid request"
	}
}

func invalidBody(w http.ResponseWriter, r *http.Request, err error) {
	response.BadRequest(w, r, "invalid JSON body: "+err.Error(), nil)
}
