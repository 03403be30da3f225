// Package main provides the entrypoint for the bus tracking API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/bustracking/bustracking/internal/api"
	"github.com/bustracking/bustracking/internal/api/middleware"
	"github.com/bustracking/bustracking/internal/backend"
	"github.com/bustracking/bustracking/internal/config"
	"github.com/bustracking/bustracking/internal/database"
	"github.com/bustracking/bustracking/internal/events"
	"github.com/bustracking/bustracking/internal/history"
	"github.com/bustracking/bustracking/internal/metrics"
	"github.com/bustracking/bustracking/internal/notification"
	"github.com/bustracking/bustracking/internal/provider/resilience"
	"github.com/bustracking/bustracking/internal/push"
	"github.com/bustracking/bustracking/internal/push/fcm"
	"github.com/bustracking/bustracking/internal/push/relay"
	"github.com/bustracking/bustracking/internal/telemetry"
	"github.com/bustracking/bustracking/internal/tracking"
	"github.com/bustracking/bustracking/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "bustracking-api"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	log = log.Level(level)

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting bus tracking API")

	ctx := context.Background()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize http metrics")
	}
	upstreamMetrics, err := telemetry.NewUpstreamMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize upstream metrics")
	}

	// Upstream clients share one registry so /health can report every breaker.
	upstreams := resilience.NewRegistry()

	backendHTTP := resilience.NewClient(resilience.ClientConfig{
		Name:       backend.ProviderName,
		Timeout:    cfg.UpstreamTimeout,
		MaxRetries: cfg.UpstreamMaxRetries,
		Registry:   upstreams,
	})

	tokenTTL := cfg.TokenCacheTTL
	if tokenTTL == 0 {
		tokenTTL = -1
	}
	directory := backend.NewClient(backend.ClientConfig{
		BaseURL:        cfg.BackendURL,
		HTTPClient:     backendHTTP,
		TokenCacheTTL:  tokenTTL,
		TokenCacheSize: cfg.TokenCacheSize,
		Metrics:        upstreamMetrics,
		Logger:         log,
	})
	log.Info().Str("base_url", cfg.BackendURL).Msg("backend client initialized")

	// Notification history
	var (
		deliveries history.Repository
		pool       interface{ Close() }
	)
	switch cfg.HistoryStore {
	case config.HistoryPostgres:
		p, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		pool = p

		repo := history.NewPostgresRepository(p)
		if err := repo.EnsureSchema(ctx); err != nil {
			p.Close()
			log.Fatal().Err(err).Msg("failed to prepare history schema")
		}
		deliveries = repo
		log.Info().
			Str("host", cfg.Database.Host).
			Str("database", cfg.Database.Database).
			Msg("notification history stored in postgres")
	default:
		deliveries = history.NewInMemoryRepository(cfg.HistoryCapacity)
		log.Info().Int("capacity", cfg.HistoryCapacity).Msg("notification history kept in memory")
	}
	if pool != nil {
		defer pool.Close()
	}

	store := tracking.NewStore()
	collector := metrics.NewCollector(store.Len)

	// Push delivery: relay first, direct FCM as fallback. Only assign enabled
	// channels so the dispatcher never sees a typed nil.
	dispatcherCfg := push.DispatcherConfig{
		History:     deliveries,
		Metrics:     collector,
		Concurrency: cfg.PushConcurrency,
		Logger:      log,
	}
	if cfg.RelayEnabled {
		dispatcherCfg.Relay = relay.NewClient(relay.ClientConfig{
			BaseURL: cfg.RelayURL,
			HTTPClient: resilience.NewClient(resilience.ClientConfig{
				Name:       relay.ProviderName,
				Timeout:    cfg.UpstreamTimeout,
				MaxRetries: 0,
				Registry:   upstreams,
			}),
			Logger: log,
		})
		log.Info().Str("url", cfg.RelayURL).Msg("push relay enabled")
	}
	if cfg.FCMEnabled() {
		native, err := fcm.NewClient(fcm.ClientConfig{
			Credentials: cfg.Firebase,
			ChannelID:   cfg.FCMChannelID,
			HTTPClient: resilience.NewClient(resilience.ClientConfig{
				Name:       fcm.ProviderName,
				Timeout:    cfg.UpstreamTimeout,
				MaxRetries: 0,
				Registry:   upstreams,
			}),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize FCM client")
		}
		dispatcherCfg.Native = native
		log.Info().Str("project_id", cfg.Firebase.ProjectID).Msg("direct FCM delivery enabled")
	}
	if dispatcherCfg.Relay == nil && dispatcherCfg.Native == nil {
		log.Warn().Msg("no push channel configured; notifications will only be logged")
	}
	dispatcher := push.NewDispatcher(dispatcherCfg)

	engineCfg := tracking.EngineConfig{
		Store:     store,
		Directory: directory,
		Notifier:  dispatcher,
		Metrics:   collector,
		Geofence:  cfg.Geofence,
		Logger:    log,
	}

	// Trip events on NATS are optional.
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.Connect(events.Config{
			URL:           cfg.NATSURL,
			SubjectPrefix: cfg.NATSSubjectPrefix,
			ClientName:    serviceName,
			Metrics:       collector,
			Logger:        log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to nats")
		}
		engineCfg.Events = publisher
		log.Info().Str("url", cfg.NATSURL).Str("prefix", cfg.NATSSubjectPrefix).Msg("trip events published to nats")
	}

	engine := tracking.NewEngine(engineCfg)
	notifications := notification.NewService(directory, engine, dispatcher, log)

	log.Info().
		Float64("approaching_radius_m", cfg.Geofence.ApproachingRadius).
		Float64("arrived_radius_m", cfg.Geofence.ArrivedRadius).
		Bool("approach_all_stops", cfg.Geofence.ApproachAllStops).
		Msg("tracking engine initialized")

	router := api.NewRouter(api.RouterConfig{
		Version:                     Version,
		Logger:                      log,
		Metrics:                     httpMetrics,
		Prometheus:                  collector.Handler(),
		Tracker:                     engine,
		Notifications:               notifications,
		History:                     deliveries,
		Upstreams:                   upstreams,
		ActiveTrips:                 engine.ActiveTrips,
		RateLimitPerMinute:          cfg.RateLimitPerMinute,
		BroadcastRateLimitPerMinute: cfg.BroadcastRateLimitPerMinute,
		RequestTimeout:              cfg.RequestTimeout,
	})

	// Handlers give up at RequestTimeout; the write deadline leaves room for the reply.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Queued location updates from Pub/Sub are optional.
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()

	var subscriber *worker.PubSubHandler
	if cfg.PubSubProjectID != "" {
		subscriber, err = worker.NewPubSubHandler(workerCtx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			Ingest: worker.NewIngest(worker.IngestConfig{
				Processor: engine,
				Metrics:   collector,
				Logger:    log,
			}),
			Logger: log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}

		go func() {
			if err := subscriber.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	stopWorker()
	if subscriber != nil {
		if err := subscriber.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub client")
		}
	}
	if publisher != nil {
		publisher.Close()
	}

	log.Info().
		Int("active_trips", engine.ActiveTrips()).
		Msg("server stopped")
}
