package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bustracking/bustracking/internal/api/models"
	"github.com/bustracking/bustracking/internal/api/response"
	"github.com/bustracking/bustracking/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version       string
	activeTrips   func() int
	upstreams     *resilience.Registry
	notifications Notifications
	logger        zerolog.Logger
}

// OpsConfig holds the dependencies of an OpsHandler.
type OpsConfig struct {
	Version       string
	ActiveTrips   func() int
	Upstreams     *resilience.Registry
	Notifications Notifications
	Logger        zerolog.Logger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	activeTrips := cfg.ActiveTrips
	if activeTrips == nil {
		activeTrips = func() int { return 0 }
	}
	return &OpsHandler{
		version:       cfg.Version,
		activeTrips:   activeTrips,
		upstreams:     cfg.Upstreams,
		notifications: cfg.Notifications,
		logger:        cfg.Logger.With().Str("component", "ops_handler").Logger(),
	}
}

// Health handles GET /health. It always answers 200; an open upstream circuit
// only degrades the reported status.
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status:      models.HealthStatusOK,
		ActiveTrips: h.activeTrips(),
		Timestamp:   models.Timestamp(time.Now()),
		Version:     h.version,
	}

	if h.upstreams != nil {
		for _, u := range h.upstreams.Snapshot() {
			status := models.HealthStatus(u.Status())
			if status != models.HealthStatusOK {
				health.Status = models.HealthStatusDegraded
			}
			health.Upstreams = append(health.Upstreams, models.UpstreamStatus{
				Name:          u.Name,
				Status:        status,
				Requests:      u.Counts.Requests,
				Failures:      u.Counts.TotalFailures,
				LastSuccessAt: timestamp(u.LastSuccessAt),
				LastFailureAt: timestamp(u.LastFailureAt),
				LastError:     u.LastError,
			})
		}
	}

	response.OK(w, r, health)
}

// RouteTokens handles GET /test/tokens/{routeId}, showing both the raw
// backend payload and the normalized directory.
func (h *OpsHandler) RouteTokens(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")

	rt, err := h.notifications.InspectRoute(r.Context(), routeID)
	if err != nil {
		h.logger.Warn().Err(err).Str("route_id", routeID).Msg("token inspection failed")
		response.BadGateway(w, r, err.Error())
		return
	}

	response.OK(w, r, models.TokensDebug{
		RouteID:     routeID,
		TokenCount:  len(rt.All),
		Tokens:      rt.All,
		ByStop:      rt.ByStop,
		RawResponse: rt.Raw,
	})
}

func timestamp(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	ts := models.Timestamp(*t)
	return &ts
}
