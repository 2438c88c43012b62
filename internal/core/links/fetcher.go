package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/change-observer/internal/platform/observability"
)

// ErrEmptyContent indicates the page yielded no readable text.
var ErrEmptyContent = errors.New("empty page content")

// ContentFetcher returns the readable text of a page for deep analysis.
type ContentFetcher interface {
	FetchContent(ctx context.Context, url string) (string, error)
}

// DirectFetcher downloads pages itself instead of going through the scraping provider.
type DirectFetcher struct {
	web     *WebFetcher
	maxLen  int
	timeout time.Duration
}

func NewDirectFetcher(web *WebFetcher, maxLen int, timeout time.Duration) *DirectFetcher {
	return &DirectFetcher{web: web, maxLen: maxLen, timeout: timeout}
}

func (d *DirectFetcher) FetchContent(ctx context.Context, url string) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	page, err := d.web.Fetch(ctx, url)
	if err != nil {
		return "", err
	}

	text := ExtractText(page, url, d.maxLen)
	if strings.TrimSpace(text.Text) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyContent, url)
	}

	return text.Text, nil
}

// NamedFetcher labels a fetcher for logs and metrics.
type NamedFetcher struct {
	Name    string
	Fetcher ContentFetcher
}

// ChainFetcher tries each fetcher in order and returns the first success.
type ChainFetcher struct {
	fetchers []NamedFetcher
	logger   *zerolog.Logger
}

func NewChainFetcher(logger *zerolog.Logger, fetchers ...NamedFetcher) *ChainFetcher {
	return &ChainFetcher{fetchers: fetchers, logger: logger}
}

func (c *ChainFetcher) FetchContent(ctx context.Context, url string) (string, error) {
	var errs []error

	for _, nf := range c.fetchers {
		start := time.Now()
		content, err := nf.Fetcher.FetchContent(ctx, url)

		observability.ContentFetchDuration.WithLabelValues(nf.Name).Observe(time.Since(start).Seconds())

		if err == nil {
			return content, nil
		}

		c.logger.Debug().Err(err).Str("source", nf.Name).Str("url", url).Msg("content fetch failed, trying next source")
		errs = append(errs, fmt.Errorf("%s: %w", nf.Name, err))

		if ctx.Err() != nil {
			break
		}
	}

	if len(errs) == 0 {
		return "", fmt.Errorf("%w: no content sources configured", ErrEmptyContent)
	}

	return "", errors.Join(errs...)
}
