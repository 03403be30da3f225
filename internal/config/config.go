// Package config loads service configuration from the environment, reading a
// .env file first when one is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bustracking/bustracking/internal/backend"
	"github.com/bustracking/bustracking/internal/database"
	"github.com/bustracking/bustracking/internal/push"
	"github.com/bustracking/bustracking/internal/push/fcm"
	"github.com/bustracking/bustracking/internal/tracking"
)

// History store kinds.
const (
	HistoryMemory   = "memory"
	HistoryPostgres = "postgres"
)

// Config is the complete service configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	BackendURL         string
	UpstreamTimeout    time.Duration
	UpstreamMaxRetries uint64
	TokenCacheTTL      time.Duration
	TokenCacheSize     int

	Geofence tracking.GeofenceConfig

	RelayURL        string
	RelayEnabled    bool
	Firebase        fcm.Credentials
	FCMChannelID    string
	PushConcurrency int

	NATSURL           string
	NATSSubjectPrefix string

	PubSubProjectID    string
	PubSubSubscription string

	HistoryStore    string
	HistoryCapacity int
	Database        database.Config

	OTelEnabled  bool
	OTLPEndpoint string

	RateLimitPerMinute          int
	BroadcastRateLimitPerMinute int
	RequestTimeout              time.Duration
}

// FCMEnabled reports whether native FCM credentials are configured.
func (c *Config) FCMEnabled() bool {
	return c.Firebase.ProjectID != "" && c.Firebase.ClientEmail != "" && c.Firebase.PrivateKey != ""
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	p := parser{errs: &errs}

	backendURL := getenvDefault("MAIN_BACKEND_URL", backend.DefaultBaseURL)

	cfg := &Config{
		Port:     getenvDefault("PORT", "3000"),
		Env:      getenvDefault("APP_ENV", "development"),
		LogLevel: getenvDefault("LOG_LEVEL", "info"),

		BackendURL:         backendURL,
		UpstreamTimeout:    p.duration("UPSTREAM_TIMEOUT", 10*time.Second),
		UpstreamMaxRetries: uint64(p.intMin("UPSTREAM_MAX_RETRIES", 2, 0)), //nolint:gosec // bounded below by zero
		TokenCacheTTL:      p.duration("TOKEN_CACHE_TTL", backend.DefaultTokenCacheTTL),
		TokenCacheSize:     p.intMin("TOKEN_CACHE_SIZE", backend.DefaultTokenCacheSize, 1),

		Geofence: tracking.GeofenceConfig{
			ApproachingRadius: p.float("APPROACHING_RADIUS", tracking.DefaultApproachingRadius),
			ArrivedRadius:     p.float("ARRIVED_RADIUS", tracking.DefaultArrivedRadius),
			ApproachAllStops:  p.bool("APPROACH_ALL_STOPS", false),
		},

		RelayURL:     getenvDefault("NOTIFICATION_RELAY_URL", backendURL),
		RelayEnabled: p.bool("NOTIFICATION_RELAY_ENABLED", true),
		Firebase: fcm.Credentials{
			ProjectID:    os.Getenv("FIREBASE_PROJECT_ID"),
			ClientEmail:  os.Getenv("FIREBASE_CLIENT_EMAIL"),
			PrivateKey:   os.Getenv("FIREBASE_PRIVATE_KEY"),
			PrivateKeyID: os.Getenv("FIREBASE_PRIVATE_KEY_ID"),
			TokenURL:     os.Getenv("FIREBASE_TOKEN_URI"),
		},
		FCMChannelID:    getenvDefault("FCM_ANDROID_CHANNEL_ID", fcm.DefaultChannelID),
		PushConcurrency: p.intMin("PUSH_CONCURRENCY", push.DefaultConcurrency, 1),

		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getenvDefault("NATS_SUBJECT_PREFIX", "bustracking"),

		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription: os.Getenv("PUBSUB_LOCATION_SUBSCRIPTION"),

		HistoryStore:    strings.ToLower(getenvDefault("HISTORY_STORE", HistoryMemory)),
		HistoryCapacity: p.intMin("HISTORY_CAPACITY", 1000, 1),
		Database: database.Config{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getenvDefault("DB_HOST", "localhost"),
			Port:            p.intMin("DB_PORT", 5432, 1),
			User:            getenvDefault("DB_USER", "bustracking"),
			Password:        getenvDefault("DB_PASSWORD", "localdev"),
			Database:        getenvDefault("DB_NAME", "bustracking"),
			SSLMode:         getenvDefault("DB_SSL_MODE", "disable"),
			MaxOpenConns:    p.intMin("DB_MAX_OPEN_CONNS", 10, 1),
			MaxIdleConns:    p.intMin("DB_MAX_IDLE_CONNS", 2, 0),
			ConnMaxLifetime: p.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		OTelEnabled:  p.bool("OTEL_ENABLED", false),
		OTLPEndpoint: getenvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		RateLimitPerMinute:          p.intMin("RATE_LIMIT_PER_MINUTE", 600, 1),
		BroadcastRateLimitPerMinute: p.intMin("BROADCAST_RATE_LIMIT_PER_MINUTE", 30, 1),
		RequestTimeout:              p.duration("REQUEST_TIMEOUT", 12*time.Second),
	}

	if err := cfg.Geofence.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid REQUEST_TIMEOUT: %v (must be positive)", cfg.RequestTimeout))
	}
	if cfg.HistoryStore != HistoryMemory && cfg.HistoryStore != HistoryPostgres {
		errs = append(errs, fmt.Errorf("invalid HISTORY_STORE: %q (want %s or %s)", cfg.HistoryStore, HistoryMemory, HistoryPostgres))
	}
	if (cfg.PubSubProjectID == "") != (cfg.PubSubSubscription == "") {
		errs = append(errs, errors.New("PUBSUB_PROJECT_ID and PUBSUB_LOCATION_SUBSCRIPTION must be set together"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// parser collects every invalid value instead of stopping at the first.
type parser struct {
	errs *[]error
}

func (p parser) fail(key, v string) {
	*p.errs = append(*p.errs, fmt.Errorf("invalid %s: %q", key, v))
}

func (p parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare integers are seconds.
		n, nErr := strconv.Atoi(v)
		if nErr != nil {
			p.fail(key, v)
			return def
		}
		d = time.Duration(n) * time.Second
	}
	if d < 0 {
		p.fail(key, v)
		return def
	}
	return d
}

func (p parser) intMin(key string, def, lowest int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lowest {
		p.fail(key, v)
		return def
	}
	return n
}

func (p parser) float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v)
		return def
	}
	return f
}

func (p parser) bool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		p.fail(key, v)
		return def
	}
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
