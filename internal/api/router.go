// Package api provides the HTTP API of the bus tracking service.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/bustracking/bustracking/internal/api/handler"
	"github.com/bustracking/bustracking/internal/api/middleware"
	"github.com/bustracking/bustracking/internal/api/response"
	"github.com/bustracking/bustracking/internal/provider/resilience"
)

// Default per-IP limits, in requests per minute.
const (
	DefaultRateLimit          = 600
	DefaultBroadcastRateLimit = 30
)

// DefaultRequestTimeout bounds the handling of one API request. It must stay
// below the server's write timeout so the response can still be written.
const DefaultRequestTimeout = 12 * time.Second

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version string
	Logger  zerolog.Logger

	// Metrics records OpenTelemetry HTTP metrics when set.
	Metrics *middleware.Metrics
	// Prometheus serves GET /metrics when set.
	Prometheus http.Handler

	Tracker       handler.Tracker
	Notifications handler.Notifications
	History       handler.HistoryLister
	Upstreams     *resilience.Registry
	ActiveTrips   func() int

	RateLimitPerMinute          int
	BroadcastRateLimitPerMinute int

	// RequestTimeout is the deadline put on every /api/v1 request context.
	// Default: DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// NewRouter creates a chi router with every route mounted.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Order matters: the request id must exist before tracing and logging read it.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.NotFound(w, req, "no route for "+req.Method+" "+req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.NotFound(w, req, "method "+req.Method+" not allowed on "+req.URL.Path)
	})

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:       cfg.Version,
		ActiveTrips:   cfg.ActiveTrips,
		Upstreams:     cfg.Upstreams,
		Notifications: cfg.Notifications,
		Logger:        cfg.Logger,
	})
	trackingHandler := handler.NewTrackingHandler(cfg.Tracker, cfg.Notifications, cfg.Logger)
	notificationHandler := handler.NewNotificationHandler(cfg.Notifications, cfg.Tracker, cfg.History, cfg.Logger)

	standard := cfg.RateLimitPerMinute
	if standard <= 0 {
		standard = DefaultRateLimit
	}
	broadcast := cfg.BroadcastRateLimitPerMinute
	if broadcast <= 0 {
		broadcast = DefaultBroadcastRateLimit
	}
	broadcastLimit := middleware.RateLimitByIP(middleware.PerMinute(broadcast))
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	r.Get("/health", opsHandler.Health)
	if cfg.Prometheus != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Prometheus)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(middleware.PerMinute(standard)))
		r.Use(middleware.RequireJSON)
		r.Use(chimiddleware.Timeout(timeout))

		r.Route("/bus-tracking", func(r chi.Router) {
			r.Post("/location", trackingHandler.Location)
			r.Post("/notify", trackingHandler.Notify)
		})

		r.Route("/trip", func(r chi.Router) {
			r.Post("/start", trackingHandler.StartTrip)
			r.Post("/pause", trackingHandler.PauseTrip)
			r.Post("/complete", trackingHandler.CompleteTrip)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/send", notificationHandler.Send)
			r.Post("/trip-status", notificationHandler.TripStatus)
			r.Get("/history", notificationHandler.History)

			// Fan-out to whole routes or every device is limited more strictly.
			r.With(broadcastLimit).Post("/send-all", notificationHandler.SendAll)
			r.With(broadcastLimit).Post("/test-route", notificationHandler.TestRoute)
		})

		r.Get("/test/tokens/{routeId}", opsHandler.RouteTokens)
	})

	return r
}
