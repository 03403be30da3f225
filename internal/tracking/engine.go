// Package tracking turns vehicle location updates into at-most-once geofence
// notifications and manages the lifecycle of tracked trips.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bustracking/bustracking/internal/api/models"
	"github.com/bustracking/bustracking/internal/push"
)

const tracerName = "github.com/bustracking/bustracking/internal/tracking"

// Directory is the engine's view of the backend system of record.
type Directory interface {
	GetTrip(ctx context.Context, tripID string) (*TripInfo, error)
	GetRouteStops(ctx context.Context, routeID string) []Stop
	RouteTokens(ctx context.Context, routeID string) *RouteTokens
	PatchTripStatus(ctx context.Context, tripID string, status Status)
}

// Notifier delivers one notification to a set of recipient tokens and returns
// the number of distinct recipients targeted.
type Notifier interface {
	Send(ctx context.Context, tokens []string, n push.Notification) int
}

// Metrics receives domain counters.
type Metrics interface {
	LocationProcessed()
	GeofenceCrossed(threshold string)
	TripStarted()
	TripCompleted()
}

// EngineConfig holds the dependencies of an Engine.
type EngineConfig struct {
	Store     *Store
	Directory Directory
	Notifier  Notifier
	Events    EventPublisher
	Metrics   Metrics
	Geofence  GeofenceConfig
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Engine evaluates location updates against each trip's stops.
type Engine struct {
	store     *Store
	directory Directory
	notifier  Notifier
	events    EventPublisher
	metrics   Metrics
	geofence  GeofenceConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEngine creates an engine. Zero radii fall back to the defaults.
func NewEngine(cfg EngineConfig) *Engine {
	store := cfg.Store
	if store == nil {
		store = NewStore()
	}

	geofence := cfg.Geofence
	if geofence.ApproachingRadius == 0 {
		geofence.ApproachingRadius = DefaultApproachingRadius
	}
	if geofence.ArrivedRadius == 0 {
		geofence.ArrivedRadius = DefaultArrivedRadius
	}

	events := cfg.Events
	if events == nil {
		events = nopPublisher{}
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		store:     store,
		directory: cfg.Directory,
		notifier:  cfg.Notifier,
		events:    events,
		metrics:   metrics,
		geofence:  geofence,
		logger:    cfg.Logger.With().Str("component", "tracking").Logger(),
		tracer:    otel.Tracer(tracerName),
		now:       now,
	}
}

// ActiveTrips returns the number of trips currently tracked.
func (e *Engine) ActiveTrips() int {
	return e.store.Len()
}

// Trip returns a snapshot of a tracked trip.
func (e *Engine) Trip(tripID string) (Trip, bool) {
	return e.store.Get(tripID)
}

// ProcessLocation applies one position report to its trip. The first report for
// a trip initializes it from the backend and announces the trip start. Geofence
// decisions are made under the trip's lock; notifications are delivered after
// the state is committed and before the call returns.
func (e *Engine) ProcessLocation(ctx context.Context, u LocationUpdate) (*UpdateResult, error) {
	ctx, span := e.tracer.Start(ctx, "tracking.ProcessLocation",
		trace.WithAttributes(attribute.String("trip.id", u.TripID)))
	defer span.End()

	if errs := validateLocation(u); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	var (
		plan      []intent
		completed bool
		snapshot  *Trip
		result    UpdateResult
		initDone  bool
	)

	initTrip := func(ctx context.Context) (*Trip, error) {
		trip, err := e.initFromBackend(ctx, u.TripID)
		if err != nil {
			return nil, err
		}
		initDone = true
		return trip, nil
	}

	_, err := e.store.Update(ctx, u.TripID, initTrip, func(t *Trip, fired FiredSet) error {
		if initDone {
			plan = append(plan, intent{
				message: tripStartedMessage(t, false),
				event:   tripEvent(EventTripStarted, t.TripID, t.RouteID, string(StatusStarted)),
			})
		}

		if !t.Status.IsTerminal() {
			if t.Status == StatusStarted {
				t.Status = StatusOngoing
			}
			pos := u.Position
			t.LastPosition = &pos
			t.LastUpdateAt = e.timestamp(u.Timestamp)

			var crossings []intent
			crossings, completed = e.geofence.evaluate(t, fired, u.Position)
			plan = append(plan, crossings...)
		}

		snapshot = t.clone()
		result = UpdateResult{
			TripID:           t.TripID,
			CurrentStopIndex: t.CurrentStopIndex,
			TotalStops:       t.TotalStops(),
			Status:           t.Status,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "processing location")
		return nil, err
	}

	e.metrics.LocationProcessed()
	if initDone {
		e.metrics.TripStarted()
	}

	if completed {
		plan = append(plan, intent{
			message: tripCompletedMessage(snapshot, false),
			event:   tripEvent(EventTripCompleted, snapshot.TripID, snapshot.RouteID, string(StatusCompleted)),
		})
	}

	e.deliver(ctx, snapshot, plan)

	if completed {
		e.directory.PatchTripStatus(ctx, snapshot.TripID, StatusCompleted)
		e.metrics.TripCompleted()
		e.logger.Info().
			Str("trip_id", snapshot.TripID).
			Str("route_id", snapshot.RouteID).
			Msg("trip completed at final stop")
	}

	span.SetAttributes(
		attribute.Int("trip.current_stop_index", result.CurrentStopIndex),
		attribute.Int("trip.notifications", len(plan)),
	)

	return &result, nil
}

// StartTrip begins tracking a trip on routeID, or restarts one that reached a
// terminal status, and announces the start to the route's recipients.
func (e *Engine) StartTrip(ctx context.Context, tripID, routeID string) (*LifecycleResult, error) {
	if errs := validateLifecycle(tripID, routeID); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	initTrip := func(ctx context.Context) (*Trip, error) {
		return e.newTrip(ctx, tripID, routeID, StatusStarted), nil
	}

	created, err := e.store.Update(ctx, tripID, initTrip, func(t *Trip, fired FiredSet) error {
		if t.RouteID != routeID {
			e.logger.Warn().
				Str("trip_id", tripID).
				Str("tracked_route_id", t.RouteID).
				Str("route_id", routeID).
				Msg("start requested with a different route; keeping tracked stops")
		}
		if t.Status.IsTerminal() {
			t.CurrentStopIndex = -1
			for k := range fired {
				delete(fired, k)
			}
		}
		t.Status = StatusStarted
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		e.metrics.TripStarted()
	}

	trip := &Trip{TripID: tripID, RouteID: routeID}
	recipients := e.broadcast(ctx, routeID, intent{
		message: tripStartedMessage(trip, true),
		event:   tripEvent(EventTripStarted, tripID, routeID, string(StatusStarted)),
	})

	return &LifecycleResult{TripID: tripID, Status: StatusStarted, Recipients: recipients}, nil
}

// PauseTrip marks a tracked trip as paused and notifies the route's recipients.
// Untracked trips are only notified.
func (e *Engine) PauseTrip(ctx context.Context, tripID, routeID string) (*LifecycleResult, error) {
	if errs := validateLifecycle(tripID, routeID); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	e.setStatus(ctx, tripID, StatusPaused)

	recipients := e.broadcast(ctx, routeID, intent{
		message: tripPausedMessage(tripID, routeID),
		event:   tripEvent(EventTripPaused, tripID, routeID, string(StatusPaused)),
	})

	return &LifecycleResult{TripID: tripID, Status: StatusPaused, Recipients: recipients}, nil
}

// CompleteTrip announces completion and stops tracking the trip, discarding its
// stop index and fired notifications.
func (e *Engine) CompleteTrip(ctx context.Context, tripID, routeID string) (*LifecycleResult, error) {
	if errs := validateLifecycle(tripID, routeID); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	trip := &Trip{TripID: tripID, RouteID: routeID}
	recipients := e.broadcast(ctx, routeID, intent{
		message: tripCompletedMessage(trip, true),
		event:   tripEvent(EventTripCompleted, tripID, routeID, string(StatusCompleted)),
	})

	if e.store.Remove(tripID) {
		e.metrics.TripCompleted()
		e.logger.Info().Str("trip_id", tripID).Msg("trip evicted after completion")
	}

	return &LifecycleResult{TripID: tripID, Status: StatusCompleted, Recipients: recipients}, nil
}

// NotifyTripStatus broadcasts a status change to the trip's route. Known statuses
// are also applied to the tracked trip. It returns ErrNoRecipients when the
// route has no tokens.
func (e *Engine) NotifyTripStatus(ctx context.Context, tripID, status string) (*LifecycleResult, error) {
	var errs []models.FieldError
	if strings.TrimSpace(tripID) == "" {
		errs = append(errs, required("trip_id"))
	}
	if strings.TrimSpace(status) == "" {
		errs = append(errs, required("status"))
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	status = strings.ToUpper(strings.TrimSpace(status))

	routeID, err := e.RouteForTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	tokens := e.directory.RouteTokens(ctx, routeID)
	if len(tokens.All) == 0 {
		return nil, ErrNoRecipients
	}

	if s := Status(status); s.IsKnown() {
		e.setStatus(ctx, tripID, s)
	}

	msg := StatusMessage(tripID, routeID, status)
	recipients := e.notifier.Send(ctx, tokens.All, msg.notification(tripID))
	e.publish(ctx, tripEvent(EventTripStatus, tripID, routeID, status), recipients)

	return &LifecycleResult{TripID: tripID, Status: Status(status), Recipients: recipients}, nil
}

// RouteForTrip resolves the route of a trip, preferring tracked state over the backend.
func (e *Engine) RouteForTrip(ctx context.Context, tripID string) (string, error) {
	if t, ok := e.store.Get(tripID); ok {
		return t.RouteID, nil
	}

	info, err := e.directory.GetTrip(ctx, tripID)
	if err != nil {
		return "", fmt.Errorf("resolving route for trip %s: %w", tripID, err)
	}
	return info.RouteID, nil
}

func (e *Engine) initFromBackend(ctx context.Context, tripID string) (*Trip, error) {
	info, err := e.directory.GetTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("fetching trip %s: %w", tripID, err)
	}
	if info.RouteID == "" {
		e.logger.Warn().Str("trip_id", tripID).Msg("trip has no route; tracking without stops")
	}
	return e.newTrip(ctx, tripID, info.RouteID, StatusOngoing), nil
}

func (e *Engine) newTrip(ctx context.Context, tripID, routeID string, status Status) *Trip {
	var stops []Stop
	if routeID != "" {
		stops = e.directory.GetRouteStops(ctx, routeID)
	}

	e.logger.Info().
		Str("trip_id", tripID).
		Str("route_id", routeID).
		Int("stops", len(stops)).
		Str("status", string(status)).
		Msg("trip initialized")

	return &Trip{
		TripID:           tripID,
		RouteID:          routeID,
		Stops:            stops,
		CurrentStopIndex: -1,
		Status:           status,
		StartedAt:        e.now(),
	}
}

func (e *Engine) setStatus(ctx context.Context, tripID string, status Status) {
	_, err := e.store.Update(ctx, tripID, nil, func(t *Trip, _ FiredSet) error {
		if t.Status.IsTerminal() {
			return nil
		}
		t.Status = status
		return nil
	})
	if err != nil && !errors.Is(err, ErrTripNotActive) {
		e.logger.Warn().Err(err).Str("trip_id", tripID).Msg("failed to update trip status")
	}
}

// deliver sends the planned notifications, resolving the route's recipients once.
func (e *Engine) deliver(ctx context.Context, t *Trip, plan []intent) {
	if len(plan) == 0 {
		return
	}

	tokens := e.directory.RouteTokens(ctx, t.RouteID)
	for _, in := range plan {
		recipients := tokens.All
		if in.stopID != "" {
			recipients = tokens.ForStop(in.stopID)
		}

		sent := e.notifier.Send(ctx, recipients, in.message.notification(t.TripID))

		if in.event.Type == EventStopApproaching || in.event.Type == EventStopArrived {
			e.metrics.GeofenceCrossed(strings.TrimPrefix(string(in.event.Type), "stop."))
			e.logger.Info().
				Str("trip_id", t.TripID).
				Str("stop_id", in.event.StopID).
				Float64("distance_m", *in.event.DistanceMeters).
				Str("event", string(in.event.Type)).
				Int("recipients", sent).
				Msg("geofence crossed")
		}

		if in.event.Type != "" {
			e.publish(ctx, in.event, sent)
		}
	}
}

func (e *Engine) broadcast(ctx context.Context, routeID string, in intent) int {
	tokens := e.directory.RouteTokens(ctx, routeID)
	sent := e.notifier.Send(ctx, tokens.All, in.message.notification(in.event.TripID))
	e.publish(ctx, in.event, sent)
	return sent
}

func (e *Engine) publish(ctx context.Context, ev Event, recipients int) {
	ev.Recipients = recipients
	ev.OccurredAt = e.now().UTC()
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.Warn().Err(err).Str("event", string(ev.Type)).Str("trip_id", ev.TripID).Msg("failed to publish trip event")
	}
}

func (e *Engine) timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return e.now()
	}
	return t
}

func (m Message) notification(tripID string) push.Notification {
	return push.Notification{
		Kind:   string(m.Kind),
		TripID: tripID,
		Title:  m.Title,
		Body:   m.Body,
		Data:   m.Data,
	}
}

type nopMetrics struct{}

func (nopMetrics) LocationProcessed()     {}
func (nopMetrics) GeofenceCrossed(string) {}
func (nopMetrics) TripStarted()           {}
func (nopMetrics) TripCompleted()         {}
