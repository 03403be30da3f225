package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bustracking/bustracking/internal/api/models"
	"github.com/bustracking/bustracking/internal/provider/resilience"
)

// apiClient calls the bus tracking API on behalf of an operator.
type apiClient struct {
	baseURL string
	http    *resilience.Client
}

func newAPIClient(baseURL string, cfg resilience.ClientConfig) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    resilience.NewClient(cfg),
	}
}

// apiError is a non-2xx answer from the API, carrying its problem body when present.
type apiError struct {
	Status  int
	Problem *models.Problem
}

func (e *apiError) Error() string {
	if e.Problem == nil {
		return fmt.Sprintf("api returned status %d", e.Status)
	}
	msg := e.Problem.Message
	if msg == "" {
		msg = e.Problem.Title
	}
	return fmt.Sprintf("api returned status %d: %s", e.Status, msg)
}

func (c *apiClient) sendAll(ctx context.Context, req models.BroadcastRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/notifications/send-all", req)
}

func (c *apiClient) testRoute(ctx context.Context, req models.TestRouteRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/notifications/test-route", req)
}

func (c *apiClient) routeTokens(ctx context.Context, routeID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/test/tokens/"+url.PathEscape(routeID), nil)
}

func (c *apiClient) history(ctx context.Context, tripID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if tripID != "" {
		q.Set("trip_id", tripID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/notifications/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		var p models.Problem
		if json.Unmarshal(raw, &p) == nil && p.Status != 0 {
			apiErr.Problem = &p
		}
		return nil, apiErr
	}

	return raw, nil
}
