package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/bustracking/bustracking/internal/api/models"
	"github.com/bustracking/bustracking/internal/api/response"
	"github.com/bustracking/bustracking/internal/history"
	"github.com/bustracking/bustracking/internal/notification"
)

// HistoryLister reads the delivery log.
type HistoryLister interface {
	List(ctx context.Context, opts history.ListOptions) ([]*history.Delivery, error)
}

// NotificationHandler serves the ad-hoc notification endpoints.
type NotificationHandler struct {
	notifications Notifications
	tracker       Tracker
	history       HistoryLister
	logger        zerolog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(notifications Notifications, tracker Tracker, hist HistoryLister, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		tracker:       tracker,
		history:       hist,
		logger:        logger.With().Str("component", "notification_handler").Logger(),
	}
}

// Send handles POST /notifications/send.
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req models.SendRequest
	if err := decode(r, w, &req); err != nil {
		invalidBody(w, r, err)
		return
	}

	recipients, err := h.notifications.Send(r.Context(), notification.SendInput{
		Tokens:  req.Tokens,
		Title:   req.Title,
		Message: req.Message,
		Data:    req.Data,
	})
	if err != nil {
		writeError(w, r, h.logger, err, "No FCM tokens found")
		return
	}

	response.OK(w, r, models.RecipientsResponse{Success: true, Recipients: recipients})
}

// SendAll handles POST /notifications/send-all.
func (h *NotificationHandler) SendAll(w http.ResponseWriter, r *http.Request) {
	var req models.BroadcastRequest
	if err := decode(r, w, &req); err != nil {
		invalidBody(w, r, err)
		return
	}

	recipients, err := h.notifications.SendAll(r.Context(), notification.BroadcastInput{
		Title:   req.Title,
		Message: req.Message,
		Data:    req.Data,
	})
	if err != nil {
		writeError(w, r, h.logger, err, "No FCM tokens found")
		return
	}

	response.OK(w, r, models.RecipientsResponse{Success: true, Recipients: recipients})
}

// TestRoute handles POST /notifications/test-route.
func (h *NotificationHandler) TestRoute(w http.ResponseWriter, r *http.Request) {
	var req models.TestRouteRequest
	if err := decode(r, w, &req); err != nil {
		invalidBody(w, r, err)
		return
	}

	result, err := h.notifications.TestRoute(r.Context(), notification.TestRouteInput{
		RouteID: req.RouteID.String(),
		Title:   req.Title,
		Message: req.Message,
	})
	if err != nil {
		writeError(w, r, h.logger, err, "No FCM tokens found for this route")
		return
	}

	response.OK(w, r, models.TestRouteResponse{
		Success:     true,
		TokensCount: len(result.Tokens),
		Tokens:      result.Tokens,
	})
}

// TripStatus handles POST /notifications/trip-status.
func (h *NotificationHandler) TripStatus(w http.ResponseWriter, r *http.Request) {
	var req models.TripStatusRequest
	if err := decode(r, w, &req); err != nil {
		invalidBody(w, r, err)
		return
	}

	result, err := h.tracker.NotifyTripStatus(r.Context(), req.TripID.String(), req.Status)
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

// History handles GET /notifications/history?trip_id=&limit=.
func (h *NotificationHandler) History(w http.ResponseWriter, r *http.Request) {
	opts := history.ListOptions{TripID: r.URL.Query().Get("trip_id")}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			response.BadRequest(w, r, "limit must be a positive integer", []models.FieldError{
				{Field: "limit", Message: "limit must be a positive integer", Code: "INVALID"},
			})
			return
		}
		opts.Limit = limit
	}

	deliveries, err := h.history.List(r.Context(), opts)
	if err != nil {
		internalError(w, r, h.logger, err)
		return
	}

	items := make([]models.HistoryItem, 0, len(deliveries))
	for _, d := range deliveries {
		items = append(items, models.HistoryItem{
			ID:         d.ID,
			TripID:     d.TripID,
			Kind:       d.Kind,
			Title:      d.Title,
			Body:       d.Body,
			Data:       d.Data,
			Channel:    d.Channel,
			Recipients: d.Recipients,
			Failed:     d.Failed,
			CreatedAt:  models.Timestamp(d.CreatedAt),
		})
	}

	response.OK(w, r, models.HistoryResponse{Items: items, Count: len(items)})
}
