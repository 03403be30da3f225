// Package backend is the gateway to the main backend API: trips, route stops,
// recipient tokens and trip status updates.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/rs/zerolog"

	"github.com/bustracking/bustracking/internal/provider/resilience"
	"github.com/bustracking/bustracking/internal/tracking"
)

const (
	// ProviderName identifies the backend upstream.
	ProviderName = "backend"

	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:8080/api/v1"

	// DefaultTokenCacheTTL bounds how stale a cached route token list may be.
	DefaultTokenCacheTTL = 30 * time.Second

	// DefaultTokenCacheSize is the number of routes kept in the token cache.
	DefaultTokenCacheSize = 1024

	maxResponseBytes = 4 << 20
)

// ErrUpstreamUnavailable wraps transport, 5xx and decode failures.
var ErrUpstreamUnavailable = errors.New("backend unavailable")

// Metrics receives upstream call and cache measurements.
type Metrics interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// ClientConfig holds configuration for the backend client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. http://backend:8080/api/v1.
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// TokenCacheTTL is how long route tokens are cached. Negative disables caching.
	TokenCacheTTL time.Duration

	// TokenCacheSize is the LRU capacity of the token cache.
	TokenCacheSize int

	// Clock drives cache expiry (tests).
	Clock gcache.Clock

	Metrics Metrics
	Logger  zerolog.Logger
}

// Client talks to the main backend. Read operations other than GetTrip and
// FetchRouteTokens degrade to empty results and log the failure.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	tokens     gcache.Cache
	metrics    Metrics
	logger     zerolog.Logger
}

// NewClient creates a new backend client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}

	ttl := cfg.TokenCacheTTL
	if ttl == 0 {
		ttl = DefaultTokenCacheTTL
	}
	if ttl > 0 {
		size := cfg.TokenCacheSize
		if size <= 0 {
			size = DefaultTokenCacheSize
		}
		builder := gcache.New(size).LRU().Expiration(ttl)
		if cfg.Clock != nil {
			builder = builder.Clock(cfg.Clock)
		}
		c.tokens = builder.Build()
	}

	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetTrip fetches trip metadata. A 404 maps to tracking.ErrTripNotFound.
func (c *Client) GetTrip(ctx context.Context, tripID string) (*tracking.TripInfo, error) {
	var resp tripResponse
	status, err := c.getJSON(ctx, "get_trip", "/trips/"+url.PathEscape(tripID), &resp)
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("trip %s: %w", tripID, tracking.ErrTripNotFound)
	}
	if err != nil {
		return nil, err
	}

	info := &tracking.TripInfo{
		TripID:  string(resp.TripID),
		RouteID: string(resp.RouteID),
		Status:  resp.Status,
	}
	if info.TripID == "" {
		info.TripID = tripID
	}
	if info.RouteID == "" {
		return nil, fmt.Errorf("%w: trip %s has no route_id", ErrUpstreamUnavailable, tripID)
	}
	return info, nil
}

// GetRouteStops returns the route's stops sorted by pickup order. Failures
// yield an empty slice.
func (c *Client) GetRouteStops(ctx context.Context, routeID string) []tracking.Stop {
	// Elements are decoded one by one so a single malformed stop does not
	// empty the route.
	var resp []json.RawMessage
	if _, err := c.getJSON(ctx, "get_route_stops", "/route-stops?route_id="+url.QueryEscape(routeID), &resp); err != nil {
		c.logger.Error().Err(err).Str("route_id", routeID).Msg("failed to fetch route stops")
		return []tracking.Stop{}
	}

	stops := make([]tracking.Stop, 0, len(resp))
	for i, raw := range resp {
		var s stopResponse
		if err := json.Unmarshal(raw, &s); err != nil {
			c.logger.Warn().Err(err).Str("route_id", routeID).Int("index", i).Msg("skipping malformed stop")
			continue
		}
		if !s.Latitude.Valid || !s.Longitude.Valid {
			c.logger.Warn().Str("route_id", routeID).Str("stop_id", string(s.StopID)).Msg("skipping stop without coordinates")
			continue
		}
		stop := tracking.Stop{
			StopID:          string(s.StopID),
			StopName:        s.StopName,
			Latitude:        s.Latitude.Value,
			Longitude:       s.Longitude.Value,
			PickupStopOrder: int(s.PickupStopOrder.Value),
		}
		if err := stop.Position().Validate(); err != nil {
			c.logger.Warn().Err(err).Str("route_id", routeID).Str("stop_id", stop.StopID).Msg("skipping stop with invalid coordinates")
			continue
		}
		stops = append(stops, stop)
	}

	sort.SliceStable(stops, func(i, j int) bool {
		return stops[i].PickupStopOrder < stops[j].PickupStopOrder
	})
	return stops
}

// FetchRouteTokens returns the normalized recipient directory for a route,
// served from the token cache when fresh.
func (c *Client) FetchRouteTokens(ctx context.Context, routeID string) (*tracking.RouteTokens, error) {
	if c.tokens != nil {
		if v, err := c.tokens.Get(routeID); err == nil {
			c.recordCache("route_tokens", true)
			return v.(*tracking.RouteTokens), nil
		}
		c.recordCache("route_tokens", false)
	}

	var raw json.RawMessage
	if _, err := c.getJSON(ctx, "route_tokens", "/fcm-tokens/by-route/"+url.PathEscape(routeID), &raw); err != nil {
		return nil, err
	}

	rt := NormalizeTokens(routeID, raw)
	if c.tokens != nil {
		_ = c.tokens.Set(routeID, rt)
	}
	return rt, nil
}

// RouteTokens is FetchRouteTokens that degrades to an empty directory.
func (c *Client) RouteTokens(ctx context.Context, routeID string) *tracking.RouteTokens {
	rt, err := c.FetchRouteTokens(ctx, routeID)
	if err != nil {
		c.logger.Error().Err(err).Str("route_id", routeID).Msg("failed to fetch route tokens")
		return &tracking.RouteTokens{RouteID: routeID, All: []string{}, ByStop: map[string][]string{}}
	}
	return rt
}

// TokensByRoute returns every token registered on a route.
func (c *Client) TokensByRoute(ctx context.Context, routeID string) []string {
	return c.RouteTokens(ctx, routeID).All
}

// TokensByStop returns the tokens registered at one stop of a route.
func (c *Client) TokensByStop(ctx context.Context, routeID, stopID string) []string {
	return c.RouteTokens(ctx, routeID).ForStop(stopID)
}

// AllTokens returns every registered token.
func (c *Client) AllTokens(ctx context.Context) []string {
	var raw json.RawMessage
	if _, err := c.getJSON(ctx, "all_tokens", "/fcm-tokens", &raw); err != nil {
		c.logger.Error().Err(err).Msg("failed to fetch all tokens")
		return []string{}
	}
	return NormalizeTokens("", raw).All
}

// PatchTripStatus reports a status change upstream. Failures are logged only.
func (c *Client) PatchTripStatus(ctx context.Context, tripID string, status tracking.Status) {
	start := time.Now()
	err := c.patchStatus(ctx, tripID, status)
	c.recordRequest("patch_trip_status", start, err)
	if err != nil {
		c.logger.Error().Err(err).Str("trip_id", tripID).Str("status", string(status)).Msg("failed to update trip status")
		return
	}
	c.logger.Info().Str("trip_id", tripID).Str("status", string(status)).Msg("trip status updated upstream")
}

// InvalidateRouteTokens drops a route from the token cache.
func (c *Client) InvalidateRouteTokens(routeID string) {
	if c.tokens != nil {
		c.tokens.Remove(routeID)
	}
}

func (c *Client) patchStatus(ctx context.Context, tripID string, status tracking.Status) error {
	body, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/trips/"+url.PathEscape(tripID)+"/status", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: executing request: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// getJSON performs a GET and decodes a 200 response into out. The status code is
// returned even on failure so callers can distinguish 404s.
func (c *Client) getJSON(ctx context.Context, operation, path string, out any) (int, error) {
	start := time.Now()
	status, err := c.doGet(ctx, path, out)
	c.recordRequest(operation, start, err)
	return status, err
}

func (c *Client) doGet(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: executing request: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("%w: unexpected status code: %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decoding response: %w", ErrUpstreamUnavailable, err)
	}
	return resp.StatusCode, nil
}

func (c *Client) recordRequest(operation string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.RecordRequest(ProviderName, operation, time.Since(start), err)
	}
}

func (c *Client) recordCache(operation string, hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.RecordCacheHit(ProviderName, operation)
		return
	}
	c.metrics.RecordCacheMiss(ProviderName, operation)
}

type tripResponse struct {
	TripID  flexString `json:"trip_id"`
	RouteID flexString `json:"route_id"`
	Status  string     `json:"status"`
}

type stopResponse struct {
	StopID          flexString `json:"stop_id"`
	StopName        string     `json:"stop_name"`
	Latitude        flexFloat  `json:"latitude"`
	Longitude       flexFloat  `json:"longitude"`
	PickupStopOrder flexFloat  `json:"pickup_stop_order"`
}
