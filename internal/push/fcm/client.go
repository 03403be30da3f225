// Package fcm sends notifications through the Firebase Cloud Messaging HTTP v1 API,
// authenticating with a service account through the Google OAuth2 token endpoint.
package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/bustracking/bustracking/internal/provider/resilience"
	"github.com/bustracking/bustracking/internal/push"
)

const (
	// ProviderName identifies the FCM upstream.
	ProviderName = "fcm"

	// DefaultBaseURL is the FCM API host.
	DefaultBaseURL = "https://fcm.googleapis.com"

	// DefaultChannelID is the Android notification channel.
	DefaultChannelID = "bus_tracking_channel"

	// Scope is the OAuth2 scope required by the FCM HTTP v1 API.
	Scope = "https://www.googleapis.com/auth/firebase.messaging"

	tokenTimeout = 10 * time.Second
)

// ErrMissingCredentials is returned when the service account is incomplete.
var ErrMissingCredentials = errors.New("fcm: project id, client email and private key are required")

// Credentials is the subset of a Firebase service account used for the OAuth2
// JWT-bearer exchange.
type Credentials struct {
	ProjectID    string
	ClientEmail  string
	PrivateKey   string // PEM; literal "\n" sequences are accepted
	PrivateKeyID string
	// TokenURL overrides google.JWTTokenURL.
	TokenURL string
}

// ClientConfig holds configuration for the FCM client.
type ClientConfig struct {
	Credentials Credentials

	// ChannelID is the Android notification channel. Default: DefaultChannelID.
	ChannelID string

	// BaseURL overrides DefaultBaseURL (tests).
	BaseURL string

	HTTPClient *resilience.Client
}

// Client sends one message per device token.
type Client struct {
	endpoint   string
	channelID  string
	tokens     oauth2.TokenSource
	httpClient *resilience.Client
}

// NewClient validates the service account and creates a client. Access tokens
// are exchanged lazily and reused until they expire.
func NewClient(cfg ClientConfig) (*Client, error) {
	creds := cfg.Credentials
	if creds.ProjectID == "" || creds.ClientEmail == "" || creds.PrivateKey == "" {
		return nil, ErrMissingCredentials
	}

	creds.PrivateKey = strings.ReplaceAll(creds.PrivateKey, `\n`, "\n")
	if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(creds.PrivateKey)); err != nil {
		return nil, fmt.Errorf("fcm: parsing private key: %w", err)
	}

	tokens, err := tokenSource(creds)
	if err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	channelID := cfg.ChannelID
	if channelID == "" {
		channelID = DefaultChannelID
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.MaxRetries = 0
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		endpoint:   fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimRight(baseURL, "/"), url.PathEscape(creds.ProjectID)),
		channelID:  channelID,
		tokens:     tokens,
		httpClient: httpClient,
	}, nil
}

// serviceAccount is the JSON key file layout understood by google.JWTConfigFromJSON.
type serviceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id,omitempty"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri,omitempty"`
}

func tokenSource(creds Credentials) (oauth2.TokenSource, error) {
	key, err := json.Marshal(serviceAccount{
		Type:         "service_account",
		ProjectID:    creds.ProjectID,
		PrivateKeyID: creds.PrivateKeyID,
		PrivateKey:   creds.PrivateKey,
		ClientEmail:  creds.ClientEmail,
		TokenURI:     creds.TokenURL,
	})
	if err != nil {
		return nil, fmt.Errorf("fcm: encoding service account: %w", err)
	}

	conf, err := google.JWTConfigFromJSON(key, Scope)
	if err != nil {
		return nil, fmt.Errorf("fcm: loading service account: %w", err)
	}

	// The token source outlives any single request, so it gets its own client.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: tokenTimeout})
	return conf.TokenSource(ctx), nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// SendToToken sends n to a single device.
func (c *Client) SendToToken(ctx context.Context, token string, n push.Notification) error {
	access, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("fcm: obtaining access token: %w", err)
	}

	body, err := json.Marshal(sendRequest{Message: c.message(token, n)})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	access.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func (c *Client) message(token string, n push.Notification) message {
	return message{
		Token:        token,
		Notification: notification{Title: n.Title, Body: n.Body},
		Data:         push.StringifyData(n.Data),
		Android: android{
			Priority: "high",
			Notification: androidNotification{
				ChannelID:  c.channelID,
				Sound:      "default",
				Visibility: "PUBLIC",
			},
		},
	}
}

type sendRequest struct {
	Message message `json:"message"`
}

type message struct {
	Token        string            `json:"token"`
	Notification notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      android           `json:"android"`
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type android struct {
	Priority     string              `json:"priority"`
	Notification androidNotification `json:"notification"`
}

type androidNotification struct {
	ChannelID  string `json:"channel_id"`
	Sound      string `json:"sound"`
	Visibility string `json:"visibility"`
}
