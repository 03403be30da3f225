// Package notification implements the operator-facing notification operations:
// direct sends, broadcasts, route tests and custom trip messages.
package notification

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bustracking/bustracking/internal/api/models"
	"github.com/bustracking/bustracking/internal/push"
	"github.com/bustracking/bustracking/internal/tracking"
)

// Defaults applied when optional request fields are blank.
const (
	DefaultBroadcastTitle   = "🚌 Notification"
	DefaultBroadcastMessage = "You have a new notification"
	DefaultTestTitle        = "🚌 Test Notification"
	DefaultTestMessage      = "This is a test notification from your bus tracking system"
)

// Directory resolves recipient tokens.
type Directory interface {
	AllTokens(ctx context.Context) []string
	FetchRouteTokens(ctx context.Context, routeID string) (*tracking.RouteTokens, error)
	TokensByRoute(ctx context.Context, routeID string) []string
	TokensByStop(ctx context.Context, routeID, stopID string) []string
	InvalidateRouteTokens(routeID string)
}

// TripResolver maps a trip to its route.
type TripResolver interface {
	RouteForTrip(ctx context.Context, tripID string) (string, error)
}

// Service sends notifications that are not driven by geofence crossings.
type Service struct {
	directory Directory
	trips     TripResolver
	notifier  tracking.Notifier
	logger    zerolog.Logger
}

// NewService creates a notification service.
func NewService(directory Directory, trips TripResolver, notifier tracking.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		directory: directory,
		trips:     trips,
		notifier:  notifier,
		logger:    logger.With().Str("component", "notification").Logger(),
	}
}

// SendInput is a direct notification to explicit tokens.
type SendInput struct {
	Tokens  []string
	Title   string
	Message string
	Data    map[string]any
}

// Send delivers a notification to the given tokens.
func (s *Service) Send(ctx context.Context, in SendInput) (int, error) {
	var errs []models.FieldError
	if len(push.DedupeTokens(in.Tokens)) == 0 {
		errs = append(errs, models.FieldError{Field: "tokens", Message: "tokens must be a non-empty array", Code: "REQUIRED"})
	}
	if strings.TrimSpace(in.Title) == "" {
		errs = append(errs, required("title"))
	}
	if strings.TrimSpace(in.Message) == "" {
		errs = append(errs, required("message"))
	}
	if len(errs) > 0 {
		return 0, &tracking.ValidationError{Errors: errs}
	}

	return s.notifier.Send(ctx, in.Tokens, push.Notification{
		Kind:  string(tracking.KindCustom),
		Title: in.Title,
		Body:  in.Message,
		Data:  in.Data,
	}), nil
}

// BroadcastInput is a notification to every registered token.
type BroadcastInput struct {
	Title   string
	Message string
	Data    map[string]any
}

// SendAll delivers a notification to every registered token.
func (s *Service) SendAll(ctx context.Context, in BroadcastInput) (int, error) {
	tokens := push.DedupeTokens(s.directory.AllTokens(ctx))
	if len(tokens) == 0 {
		return 0, tracking.ErrNoRecipients
	}

	s.logger.Info().Int("tokens", len(tokens)).Msg("broadcasting to all recipients")

	return s.notifier.Send(ctx, tokens, push.Notification{
		Kind:  "broadcast",
		Title: orDefault(in.Title, DefaultBroadcastTitle),
		Body:  orDefault(in.Message, DefaultBroadcastMessage),
		Data:  in.Data,
	}), nil
}

// TestRouteInput is a test notification to a route.
type TestRouteInput struct {
	RouteID string
	Title   string
	Message string
}

// TestRouteResult reports the tokens a route test targeted.
type TestRouteResult struct {
	Recipients int
	Tokens     []string
}

// TestRoute sends a test notification to every token on a route.
func (s *Service) TestRoute(ctx context.Context, in TestRouteInput) (*TestRouteResult, error) {
	if strings.TrimSpace(in.RouteID) == "" {
		return nil, &tracking.ValidationError{Errors: []models.FieldError{required("route_id")}}
	}

	tokens := push.DedupeTokens(s.directory.TokensByRoute(ctx, in.RouteID))
	if len(tokens) == 0 {
		return nil, tracking.ErrNoRecipients
	}

	recipients := s.notifier.Send(ctx, tokens, push.Notification{
		Kind:  "test",
		Title: orDefault(in.Title, DefaultTestTitle),
		Body:  orDefault(in.Message, DefaultTestMessage),
		Data: map[string]any{
			"route_id": in.RouteID,
			"test":     "true",
		},
	})

	return &TestRouteResult{Recipients: recipients, Tokens: tokens}, nil
}

// TripMessageInput is an operator message about a trip, optionally scoped to one stop.
type TripMessageInput struct {
	TripID  string
	Message string
	StopID  string
}

// NotifyTrip sends a custom message to the trip's route, or to one stop's
// recipients when StopID is set. Zero recipients is not an error.
func (s *Service) NotifyTrip(ctx context.Context, in TripMessageInput) (int, error) {
	var errs []models.FieldError
	if strings.TrimSpace(in.TripID) == "" {
		errs = append(errs, required("trip_id"))
	}
	if strings.TrimSpace(in.Message) == "" {
		errs = append(errs, required("message"))
	}
	if len(errs) > 0 {
		return 0, &tracking.ValidationError{Errors: errs}
	}

	routeID, err := s.trips.RouteForTrip(ctx, in.TripID)
	if err != nil {
		return 0, err
	}

	var tokens []string
	if in.StopID != "" {
		tokens = s.directory.TokensByStop(ctx, routeID, in.StopID)
	} else {
		tokens = s.directory.TokensByRoute(ctx, routeID)
	}

	msg := tracking.CustomMessage(in.TripID, in.Message)
	return s.notifier.Send(ctx, tokens, push.Notification{
		Kind:   string(msg.Kind),
		TripID: in.TripID,
		Title:  msg.Title,
		Body:   msg.Body,
		Data:   msg.Data,
	}), nil
}

// InspectRoute returns the raw and normalized token directory of a route,
// bypassing and then refreshing the token cache. Upstream errors are returned
// so operators can see them.
func (s *Service) InspectRoute(ctx context.Context, routeID string) (*tracking.RouteTokens, error) {
	if strings.TrimSpace(routeID) == "" {
		return nil, &tracking.ValidationError{Errors: []models.FieldError{required("route_id")}}
	}
	s.directory.InvalidateRouteTokens(routeID)
	return s.directory.FetchRouteTokens(ctx, routeID)
}

func required(field string) models.FieldError {
	return models.FieldError{Field: field, Message: field + " is required", Code: "REQUIRED"}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
