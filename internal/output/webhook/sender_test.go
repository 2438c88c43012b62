package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
)

const (
	testUserAgent   = "Kabuki-Observer/1.0"
	testRelaySecret = "relay-secret"
)

// publicURL returns a public looking URL and a client that dials srv for any host.
func publicURL(t *testing.T, srv *httptest.Server) (string, *http.Client) {
	t.Helper()

	target := srv.Listener.Addr().String()
	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, network, target)
		},
	}}

	return "http://public.example.com/hook", client
}

func TestSender_SendChangeDirect(t *testing.T) {
	var (
		gotUA   string
		gotType string
		gotBody map[string]any
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get(headerUserAgent)
		gotType = r.Header.Get(headerContentType)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target, client := publicURL(t, srv)
	logger := zerolog.Nop()
	s := NewSender(Config{UserAgent: testUserAgent, HTTPClient: client}, &logger)

	res, err := s.SendChange(context.Background(), target, testNotification())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, testUserAgent, gotUA)
	assert.Equal(t, contentTypeJSON, gotType)
	assert.Equal(t, EventWebsiteChanged, gotBody["event"])
}

func TestSender_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	target, client := publicURL(t, srv)
	logger := zerolog.Nop()
	s := NewSender(Config{HTTPClient: client}, &logger)

	_, err := s.SendChange(context.Background(), target, testNotification())
	require.ErrorIs(t, err, coreerrors.ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "nope")
}

func TestSender_PrivateWithoutProxy(t *testing.T) {
	logger := zerolog.Nop()
	s := NewSender(Config{}, &logger)

	_, err := s.SendChange(context.Background(), "http://192.168.1.20/hook", testNotification())
	require.ErrorIs(t, err, coreerrors.ErrProxyNotConfigured)
}

func TestSender_PrivateThroughRelay(t *testing.T) {
	var delivered map[string]any

	dest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testUserAgent, r.Header.Get(headerUserAgent))
		_ = json.NewDecoder(r.Body).Decode(&delivered)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer dest.Close()

	logger := zerolog.Nop()
	relay := httptest.NewServer(NewProxyHandler(testUserAgent, testRelaySecret, time.Second, &logger))
	defer relay.Close()

	s := NewSender(Config{ProxyURL: relay.URL, ProxySecret: testRelaySecret, UserAgent: testUserAgent}, &logger)

	res, err := s.SendChange(context.Background(), dest.URL, testNotification())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, http.StatusAccepted, res.Status)
	assert.Equal(t, EventWebsiteChanged, delivered["event"])
}

func TestSender_RelayReportsFailure(t *testing.T) {
	var gotSecret string

	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get(headerRelaySecret)
		writeJSON(w, http.StatusOK, Result{Success: false, Status: http.StatusInternalServerError})
	}))
	defer relay.Close()

	logger := zerolog.Nop()
	s := NewSender(Config{ProxyURL: relay.URL, ProxySecret: testRelaySecret}, &logger)

	res, err := s.SendChange(context.Background(), "http://192.168.1.10/hook", testNotification())
	require.ErrorIs(t, err, coreerrors.ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "via relay")
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, testRelaySecret, gotSecret)
}

func TestSender_SlackCrawl(t *testing.T) {
	var body []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, client := publicURL(t, srv)
	logger := zerolog.Nop()
	s := NewSender(Config{HTTPClient: client}, &logger)

	_, err := s.SendCrawl(context.Background(), "http://hooks.slack.com/services/x", testCrawl())
	require.NoError(t, err)
	assert.Contains(t, string(body), "Crawl Completed: Site")
	assert.NotContains(t, string(body), EventCrawlCompleted)
}

func TestProxyHandler_Validation(t *testing.T) {
	logger := zerolog.Nop()
	h := NewProxyHandler("", testRelaySecret, 0, &logger)

	tests := []struct {
		name   string
		method string
		secret string
		body   string
		want   int
	}{
		{name: "wrong method", method: http.MethodGet, secret: testRelaySecret, want: http.StatusMethodNotAllowed},
		{name: "missing secret", method: http.MethodPost, body: `{"targetUrl":"http://10.0.0.5/hook","payload":{}}`, want: http.StatusUnauthorized},
		{name: "wrong secret", method: http.MethodPost, secret: "guess", body: `{"targetUrl":"http://10.0.0.5/hook","payload":{}}`, want: http.StatusUnauthorized},
		{name: "bad json", method: http.MethodPost, secret: testRelaySecret, body: "{", want: http.StatusBadRequest},
		{name: "bad target", method: http.MethodPost, secret: testRelaySecret, body: `{"targetUrl":"ftp://x","payload":{}}`, want: http.StatusBadRequest},
		{name: "missing payload", method: http.MethodPost, secret: testRelaySecret, body: `{"targetUrl":"http://10.0.0.5/hook"}`, want: http.StatusBadRequest},
		{name: "public target", method: http.MethodPost, secret: testRelaySecret, body: `{"targetUrl":"https://example.org/hook","payload":{}}`, want: http.StatusForbidden},
		{name: "metadata endpoint", method: http.MethodPost, secret: testRelaySecret, body: `{"targetUrl":"http://169.254.169.254/latest","payload":{}}`, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/webhook-proxy", strings.NewReader(tt.body))
			if tt.secret != "" {
				req.Header.Set(headerRelaySecret, tt.secret)
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
