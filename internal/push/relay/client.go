// Package relay sends notifications through the backend's push relay endpoint.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bustracking/bustracking/internal/provider/resilience"
	"github.com/bustracking/bustracking/internal/push"
)

// ProviderName identifies the relay upstream.
const ProviderName = "relay"

// ClientConfig holds configuration for the relay client.
type ClientConfig struct {
	// BaseURL is the backend API root; the client posts to {BaseURL}/notifications/send.
	BaseURL string

	// HTTPClient is optional. The default makes a single attempt per call so a
	// slow relay never delivers the same notification twice.
	HTTPClient *resilience.Client

	Logger zerolog.Logger
}

// Client posts notifications to the relay.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a relay client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.MaxRetries = 0
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Send posts one notification for all tokens. Any non-2xx status is an error.
func (c *Client) Send(ctx context.Context, tokens []string, n push.Notification) error {
	data := n.Data
	if data == nil {
		data = map[string]any{}
	}

	body, err := json.Marshal(sendRequest{
		FCMTokens: tokens,
		Title:     n.Title,
		Body:      n.Body,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/notifications/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	c.logger.Debug().Int("tokens", len(tokens)).Str("title", n.Title).Msg("relay accepted notification")
	return nil
}

type sendRequest struct {
	FCMTokens []string       `json:"fcm_tokens"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data"`
}
