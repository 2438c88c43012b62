package links

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrTooManyRedirects indicates too many HTTP redirects.
var ErrTooManyRedirects = errors.New("too many redirects")

// ErrHTTPStatusNotOK indicates an HTTP response with a non-200 status code.
var ErrHTTPStatusNotOK = errors.New("HTTP status not OK")

// ErrUnsupportedScheme indicates a URL that is not http or https.
var ErrUnsupportedScheme = errors.New("unsupported url scheme")

const (
	defaultFetchTimeout = 30 * time.Second
	globalLimiterBurst  = 5
	maxRedirects        = 5
	maxBodySizeBytes    = 5 * 1024 * 1024
	hostLimiterRate     = 1
	hostLimiterBurst    = 2
	defaultUserAgent    = "Kabuki-Observer/1.0"
	acceptHeader        = "text/html,application/xhtml+xml,application/rss+xml,text/plain"
	acceptLanguage      = "fr-FR,fr;q=0.9,en;q=0.8"
)

// WebFetcher downloads linked pages directly when the scraping provider cannot.
// Requests share a global limiter and are additionally limited per host.
type WebFetcher struct {
	client        *http.Client
	globalLimiter *rate.Limiter
	userAgent     string

	mu           sync.Mutex
	hostLimiters map[string]*rate.Limiter
}

// FetchedPage is a raw HTTP response body with its declared media type.
type FetchedPage struct {
	Body        []byte
	ContentType string
	FinalURL    string
}

func NewWebFetcher(rps float64, timeout time.Duration, userAgent string) *WebFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &WebFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrTooManyRedirects
				}

				return nil
			},
		},
		globalLimiter: rate.NewLimiter(limit, globalLimiterBurst),
		userAgent:     userAgent,
		hostLimiters:  make(map[string]*rate.Limiter),
	}
}

// Fetch downloads a page. Only http and https URLs are accepted and the body is
// capped at 5 MB.
func (f *WebFetcher) Fetch(ctx context.Context, rawURL string) (FetchedPage, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return FetchedPage{}, fmt.Errorf("parse url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return FetchedPage{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	if err := f.globalLimiter.Wait(ctx); err != nil {
		return FetchedPage{}, fmt.Errorf("global rate limiter wait: %w", err)
	}

	if err := f.hostLimiter(u.Host).Wait(ctx); err != nil {
		return FetchedPage{}, fmt.Errorf("host rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return FetchedPage{}, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchedPage{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FetchedPage{}, fmt.Errorf("%w: %d", ErrHTTPStatusNotOK, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySizeBytes))
	if err != nil {
		return FetchedPage{}, fmt.Errorf("read response body: %w", err)
	}

	return FetchedPage{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

func (f *WebFetcher) hostLimiter(host string) *rate.Limiter {
	host = strings.ToLower(host)

	f.mu.Lock()
	defer f.mu.Unlock()

	limiter, ok := f.hostLimiters[host]
	if !ok {
		limiter = rate.NewLimiter(hostLimiterRate, hostLimiterBurst)
		f.hostLimiters[host] = limiter
	}

	return limiter
}
