package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultUserAgent   = "Kabuki-Observer/1.0"
	contentTypeJSON    = "application/json"
	headerContentType  = "Content-Type"
	headerUserAgent    = "User-Agent"
	headerRelaySecret  = "X-Relay-Secret"
	errorBodyMaxBytes  = 1024
	logKeyWebhook      = "webhook_url"
	logKeyStatus       = "status"
	logKeyViaProxy     = "via_proxy"
	errFmtStatusDetail = "%w: %d %s"
)

// Config configures a Sender.
type Config struct {
	// ProxyURL is the relay endpoint for private destinations.
	ProxyURL    string
	// ProxySecret is sent to the relay in the X-Relay-Secret header.
	ProxySecret string
	UserAgent   string
	Timeout     time.Duration
	Location    *time.Location
	HTTPClient  *http.Client
}

// Result is the delivery outcome reported by the destination or the relay.
type Result struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

// ProxyRequest is the body sent to the relay.
type ProxyRequest struct {
	TargetURL string          `json:"targetUrl"`
	Payload   json.RawMessage `json:"payload"`
}

// Sender delivers webhook payloads.
type Sender struct {
	client      *http.Client
	proxyURL    string
	proxySecret string
	userAgent   string
	loc         *time.Location
	now         func() time.Time
	logger      *zerolog.Logger
}

func NewSender(cfg Config, logger *zerolog.Logger) *Sender {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}

		client = &http.Client{Timeout: timeout}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	return &Sender{
		client:      client,
		proxyURL:    cfg.ProxyURL,
		proxySecret: cfg.ProxySecret,
		userAgent:   userAgent,
		loc:         loc,
		now:         time.Now,
		logger:      logger,
	}
}

// SendChange posts a change notification, in Block Kit form for Slack URLs.
func (s *Sender) SendChange(ctx context.Context, webhookURL string, n domain.ChangeNotification) (Result, error) {
	var payload any = BuildChangePayload(n, s.now())
	if IsSlackURL(webhookURL) {
		payload = BuildSlackChange(n, s.loc)
	}

	return s.Send(ctx, webhookURL, payload)
}

// SendCrawl posts a crawl completion notification.
func (s *Sender) SendCrawl(ctx context.Context, webhookURL string, n domain.CrawlNotification) (Result, error) {
	var payload any = BuildCrawlPayload(n, s.now())
	if IsSlackURL(webhookURL) {
		payload = BuildSlackCrawl(n)
	}

	return s.Send(ctx, webhookURL, payload)
}

// Send posts any JSON payload, through the relay when the destination is private.
func (s *Sender) Send(ctx context.Context, webhookURL string, payload any) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal webhook payload: %w", err)
	}

	if IsPrivateDestination(webhookURL) {
		return s.sendViaProxy(ctx, webhookURL, body)
	}

	status, _, err := s.post(ctx, webhookURL, body, map[string]string{headerUserAgent: s.userAgent})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info().Str(logKeyWebhook, webhookURL).Int(logKeyStatus, status).Msg("webhook sent")

	return Result{Success: true, Status: status}, nil
}

func (s *Sender) sendViaProxy(ctx context.Context, webhookURL string, payload []byte) (Result, error) {
	if s.proxyURL == "" {
		return Result{}, fmt.Errorf("%w: %s", coreerrors.ErrProxyNotConfigured, webhookURL)
	}

	body, err := json.Marshal(ProxyRequest{TargetURL: webhookURL, Payload: payload})
	if err != nil {
		return Result{}, fmt.Errorf("marshal proxy request: %w", err)
	}

	var headers map[string]string
	if s.proxySecret != "" {
		headers = map[string]string{headerRelaySecret: s.proxySecret}
	}

	_, respBody, err := s.post(ctx, s.proxyURL, body, headers)
	if err != nil {
		return Result{}, fmt.Errorf("webhook proxy: %w", err)
	}

	var res Result
	if err := json.Unmarshal(respBody, &res); err != nil {
		return Result{}, fmt.Errorf("decode proxy response: %w", err)
	}

	if !res.Success {
		return res, fmt.Errorf(errFmtStatusDetail, coreerrors.ErrUnexpectedStatus, res.Status, "via relay")
	}

	s.logger.Info().
		Str(logKeyWebhook, webhookURL).
		Int(logKeyStatus, res.Status).
		Bool(logKeyViaProxy, true).
		Msg("webhook sent")

	return res, nil
}

func (s *Sender) post(ctx context.Context, target string, body []byte, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create webhook request: %w", err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read webhook response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail := strings.TrimSpace(string(respBody))
		if len(detail) > errorBodyMaxBytes {
			detail = detail[:errorBodyMaxBytes]
		}

		return resp.StatusCode, respBody, fmt.Errorf(errFmtStatusDetail, coreerrors.ErrUnexpectedStatus, resp.StatusCode, detail)
	}

	return resp.StatusCode, respBody, nil
}
