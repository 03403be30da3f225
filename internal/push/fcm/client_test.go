package fcm_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bustracking/bustracking/internal/push"
	"github.com/bustracking/bustracking/internal/push/fcm"
)

func generateKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return key, string(block)
}

func TestNewClient_MissingCredentials(t *testing.T) {
	_, err := fcm.NewClient(fcm.ClientConfig{Credentials: fcm.Credentials{ProjectID: "p"}})
	assert.ErrorIs(t, err, fcm.ErrMissingCredentials)
}

func TestNewClient_InvalidKey(t *testing.T) {
	_, err := fcm.NewClient(fcm.ClientConfig{Credentials: fcm.Credentials{
		ProjectID:   "p",
		ClientEmail: "svc@p.iam.gserviceaccount.com",
		PrivateKey:  "not a key",
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing private key")
}

// fakeGoogle serves both the OAuth2 token endpoint and the FCM send endpoint.
type fakeGoogle struct {
	t   *testing.T
	key *rsa.PublicKey

	expiresIn   int
	tokenStatus int

	exchanges atomic.Int32

	mu      sync.Mutex
	bearers []string
	sends   []map[string]any
}

func newFakeGoogle(t *testing.T, key *rsa.PublicKey) (*fakeGoogle, *httptest.Server) {
	f := &fakeGoogle{t: t, key: key, expiresIn: 3600, tokenStatus: http.StatusOK}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/token" {
		f.token(w, r)
		return
	}

	assert.Equal(f.t, "/v1/projects/school-bus/messages:send", r.URL.Path)
	var body struct {
		Message map[string]any `json:"message"`
	}
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))

	f.mu.Lock()
	f.bearers = append(f.bearers, r.Header.Get("Authorization"))
	f.sends = append(f.sends, body.Message)
	f.mu.Unlock()

	_, _ = w.Write([]byte(`{"name":"projects/school-bus/messages/1"}`))
}

func (f *fakeGoogle) token(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	assert.Equal(f.t, "urn:ietf:params:oauth:grant-type:jwt-bearer", r.PostForm.Get("grant_type"))

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(r.PostForm.Get("assertion"), claims, func(tok *jwt.Token) (any, error) {
		assert.Equal(f.t, "key-1", tok.Header["kid"])
		return f.key, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(f.t, err)
	require.True(f.t, parsed.Valid)

	assert.Equal(f.t, "svc@school-bus.iam.gserviceaccount.com", claims["iss"])
	assert.Equal(f.t, fcm.Scope, claims["scope"])
	assert.Equal(f.t, "http://"+r.Host+"/token", claims["aud"])

	if f.tokenStatus != http.StatusOK {
		w.WriteHeader(f.tokenStatus)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}

	n := f.exchanges.Add(1)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "access-" + string(rune('0'+n)),
		"token_type":   "Bearer",
		"expires_in":   f.expiresIn,
	})
}

func newTestClient(t *testing.T, server *httptest.Server, keyPEM string) *fcm.Client {
	t.Helper()
	client, err := fcm.NewClient(fcm.ClientConfig{
		Credentials: fcm.Credentials{
			ProjectID:    "school-bus",
			ClientEmail:  "svc@school-bus.iam.gserviceaccount.com",
			PrivateKey:   strings.ReplaceAll(keyPEM, "\n", `\n`),
			PrivateKeyID: "key-1",
			TokenURL:     server.URL + "/token",
		},
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	return client
}

func TestClient_SendToToken(t *testing.T) {
	key, keyPEM := generateKey(t)
	fake, server := newFakeGoogle(t, &key.PublicKey)
	client := newTestClient(t, server, keyPEM)
	assert.Equal(t, "fcm", client.Name())

	n := push.Notification{
		Title: "🚌 Bus Approaching!",
		Body:  "Bus is approaching Main St.",
		Data:  map[string]any{"trip_id": "T1", "distance": float64(120)},
	}
	require.NoError(t, client.SendToToken(context.Background(), "device-1", n))
	require.NoError(t, client.SendToToken(context.Background(), "device-1", n))

	assert.Equal(t, int32(1), fake.exchanges.Load(), "access token is reused until it expires")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"Bearer access-1", "Bearer access-1"}, fake.bearers)

	msg := fake.sends[0]
	assert.Equal(t, "device-1", msg["token"])
	assert.Equal(t, map[string]any{"title": "🚌 Bus Approaching!", "body": "Bus is approaching Main St."}, msg["notification"])
	assert.Equal(t, map[string]any{"trip_id": "T1", "distance": "120"}, msg["data"])
	assert.Equal(t, map[string]any{
		"priority": "high",
		"notification": map[string]any{
			"channel_id": "bus_tracking_channel",
			"sound":      "default",
			"visibility": "PUBLIC",
		},
	}, msg["android"])
}

func TestClient_SendToToken_ExchangesExpiredToken(t *testing.T) {
	key, keyPEM := generateKey(t)
	fake, server := newFakeGoogle(t, &key.PublicKey)
	// Inside the oauth2 expiry margin, so every send needs a fresh token.
	fake.expiresIn = 1
	client := newTestClient(t, server, keyPEM)

	require.NoError(t, client.SendToToken(context.Background(), "d", push.Notification{Title: "t"}))
	require.NoError(t, client.SendToToken(context.Background(), "d", push.Notification{Title: "t"}))

	assert.Equal(t, int32(2), fake.exchanges.Load())
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"Bearer access-1", "Bearer access-2"}, fake.bearers)
}

func TestClient_SendToToken_TokenExchangeRejected(t *testing.T) {
	key, keyPEM := generateKey(t)
	fake, server := newFakeGoogle(t, &key.PublicKey)
	fake.tokenStatus = http.StatusBadRequest
	client := newTestClient(t, server, keyPEM)

	err := client.SendToToken(context.Background(), "d", push.Notification{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "obtaining access token")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.sends, "nothing is sent without an access token")
}

func TestClient_SendToToken_ErrorStatus(t *testing.T) {
	key, keyPEM := generateKey(t)
	_, tokens := newFakeGoogle(t, &key.PublicKey)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"status":"UNREGISTERED"}}`))
	}))
	defer server.Close()

	client, err := fcm.NewClient(fcm.ClientConfig{
		Credentials: fcm.Credentials{
			ProjectID:    "p",
			ClientEmail:  "svc@school-bus.iam.gserviceaccount.com",
			PrivateKey:   keyPEM,
			PrivateKeyID: "key-1",
			TokenURL:     tokens.URL + "/token",
		},
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	err = client.SendToToken(context.Background(), "stale", push.Notification{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "UNREGISTERED")
}
