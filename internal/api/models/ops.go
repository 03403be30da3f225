package models

import "encoding/json"

// Health is the body of GET /health.
type Health struct {
	Status      HealthStatus     `json:"status"`
	ActiveTrips int              `json:"active_trips"`
	Timestamp   Timestamp        `json:"timestamp"`
	Version     string           `json:"version,omitempty"`
	Upstreams   []UpstreamStatus `json:"upstreams,omitempty"`
}

// UpstreamStatus is the circuit breaker view of one upstream.
type UpstreamStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	Requests      uint32       `json:"requests"`
	Failures      uint32       `json:"failures"`
	LastSuccessAt *Timestamp   `json:"last_success_at,omitempty"`
	LastFailureAt *Timestamp   `json:"last_failure_at,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
}

// TokensDebug is the body of GET /test/tokens/{routeId}.
type TokensDebug struct {
	RouteID     string              `json:"route_id"`
	TokenCount  int                 `json:"token_count"`
	Tokens      []string            `json:"tokens"`
	ByStop      map[string][]string `json:"by_stop"`
	RawResponse json.RawMessage     `json:"raw_response"`
}
