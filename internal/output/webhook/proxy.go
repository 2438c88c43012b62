package webhook

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const proxyMaxBodyBytes = 1 << 20

// ProxyHandler relays {targetUrl, payload} requests to the target and reports
// {success, status}. It runs next to the private destinations it forwards to
// and refuses any target that IsPrivateDestination rejects. With a secret set,
// callers must present it in the X-Relay-Secret header.
type ProxyHandler struct {
	client    *http.Client
	userAgent string
	secret    string
	logger    *zerolog.Logger
}

func NewProxyHandler(userAgent, secret string, timeout time.Duration, logger *zerolog.Logger) *ProxyHandler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &ProxyHandler{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		secret:    secret,
		logger:    logger,
	}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	if h.secret != "" &&
		subtle.ConstantTimeCompare([]byte(r.Header.Get(headerRelaySecret)), []byte(h.secret)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req ProxyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, proxyMaxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	target, err := url.Parse(req.TargetURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		http.Error(w, "invalid targetUrl", http.StatusBadRequest)
		return
	}

	if len(req.Payload) == 0 {
		http.Error(w, "missing payload", http.StatusBadRequest)
		return
	}

	if !IsPrivateDestination(target.String()) {
		h.logger.Warn().Str(logKeyWebhook, req.TargetURL).Msg("relay refused public target")
		http.Error(w, "targetUrl must be a private destination", http.StatusForbidden)

		return
	}

	fwd, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target.String(), bytes.NewReader(req.Payload))
	if err != nil {
		http.Error(w, "invalid targetUrl", http.StatusBadRequest)
		return
	}

	fwd.Header.Set(headerContentType, contentTypeJSON)
	fwd.Header.Set(headerUserAgent, h.userAgent)

	resp, err := h.client.Do(fwd)
	if err != nil {
		h.logger.Warn().Err(err).Str(logKeyWebhook, req.TargetURL).Msg("relay delivery failed")
		writeJSON(w, http.StatusBadGateway, Result{Success: false, Status: 0})

		return
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	ok := resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
	h.logger.Info().Str(logKeyWebhook, req.TargetURL).Int(logKeyStatus, resp.StatusCode).Msg("relayed webhook")

	writeJSON(w, http.StatusOK, Result{Success: ok, Status: resp.StatusCode})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
