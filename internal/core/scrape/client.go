// Package scrape is a client for the Firecrawl scraping API, cloud or self-hosted.
package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
)

const (
	scrapePath        = "/v1/scrape"
	crawlPath         = "/v1/crawl"
	defaultTimeout    = 120 * time.Second
	maxResponseBytes  = 20 * 1024 * 1024
	errorBodyPreview  = 512
	headerAuthToken   = "X-Auth-Token"
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// Config configures the provider client.
type Config struct {
	APIKey       string
	APIURL       string
	InstanceType string
	Timeout      time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *zerolog.Logger
}

func New(cfg Config, logger *zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.InstanceType == "" {
		cfg.InstanceType = InstanceCloud
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	return &Client{
		cfg: cfg,
		// Provider-side timeouts are passed in the body; the margin covers transport.
		http:   &http.Client{Timeout: cfg.Timeout + 30*time.Second},
		logger: logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != ""
}

// ScrapeURL scrapes one page with the requested formats.
func (c *Client) ScrapeURL(ctx context.Context, pageURL string, opts Options) (Page, error) {
	if !c.Enabled() {
		return Page{}, coreerrors.ErrClientDisabled
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	req := scrapeRequest{
		URL:     pageURL,
		Formats: opts.Formats,
		Timeout: timeout.Milliseconds(),
		Headers: opts.Headers,
	}

	if len(req.Formats) == 0 {
		req.Formats = []string{FormatMarkdown}
	}

	for _, f := range req.Formats {
		if f == FormatChangeTracking {
			req.ChangeTrackingOptions = &changeTrackingOptions{Modes: []string{ModeGitDiff}}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var env envelope
	if err := c.do(ctx, http.MethodPost, scrapePath, req, &env); err != nil {
		return Page{}, err
	}

	if !env.Success {
		return Page{}, fmt.Errorf("%w: %s", coreerrors.ErrScrapeFailed, env.Error)
	}

	var wp wirePage
	if err := json.Unmarshal(env.Data, &wp); err != nil {
		return Page{}, fmt.Errorf("decode scrape data: %w", err)
	}

	return c.toPage(wp), nil
}

// FetchContent returns the markdown of a page without change tracking.
func (c *Client) FetchContent(ctx context.Context, pageURL string) (string, error) {
	page, err := c.ScrapeURL(ctx, pageURL, Options{Formats: []string{FormatMarkdown}})
	if err != nil {
		return "", err
	}

	if page.Markdown == "" {
		return "", fmt.Errorf("%w: empty markdown for %s", coreerrors.ErrScrapeFailed, pageURL)
	}

	return page.Markdown, nil
}

// CrawlURL starts an asynchronous crawl and returns its job id.
func (c *Client) CrawlURL(ctx context.Context, siteURL string, limit int) (string, error) {
	if !c.Enabled() {
		return "", coreerrors.ErrClientDisabled
	}

	req := crawlRequest{
		URL:   siteURL,
		Limit: limit,
		ScrapeOptions: crawlScrapeOp{
			Formats: []string{FormatMarkdown, FormatChangeTracking},
		},
	}

	var env envelope
	if err := c.do(ctx, http.MethodPost, crawlPath, req, &env); err != nil {
		return "", err
	}

	if !env.Success || env.ID == "" {
		return "", fmt.Errorf("%w: crawl not started: %s", coreerrors.ErrScrapeFailed, env.Error)
	}

	return env.ID, nil
}

// CheckCrawlStatus polls a crawl job.
func (c *Client) CheckCrawlStatus(ctx context.Context, jobID string) (CrawlJob, error) {
	if !c.Enabled() {
		return CrawlJob{}, coreerrors.ErrClientDisabled
	}

	var resp crawlStatusResponse
	if err := c.do(ctx, http.MethodGet, crawlPath+"/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return CrawlJob{}, err
	}

	if resp.Success != nil && !*resp.Success {
		return CrawlJob{}, fmt.Errorf("%w: %s", coreerrors.ErrScrapeFailed, resp.Error)
	}

	job := CrawlJob{
		ID:        jobID,
		Status:    resp.Status,
		Total:     resp.Total,
		Completed: resp.Completed,
	}

	for _, wp := range resp.Data {
		job.Pages = append(job.Pages, c.toPage(wp))
	}

	return job, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)

	if c.cfg.InstanceType == InstanceSelfHosted {
		req.Header.Set(headerAuthToken, c.cfg.APIKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d: %s", coreerrors.ErrUnexpectedStatus, resp.StatusCode, preview(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) toPage(wp wirePage) Page {
	page := Page{
		Markdown:    wp.Markdown,
		Links:       wp.Links,
		RawMetadata: wp.Metadata,
	}

	if len(wp.Metadata) > 0 {
		if err := json.Unmarshal(wp.Metadata, &page.Metadata); err != nil {
			c.logger.Debug().Err(err).Msg("unparseable scrape metadata")
		}
	}

	if wp.ChangeTracking == nil {
		return page
	}

	ct := &ChangeTracking{
		ChangeStatus: wp.ChangeTracking.ChangeStatus,
		Visibility:   wp.ChangeTracking.Visibility,
	}

	if wp.ChangeTracking.PreviousScrapeAt != "" {
		if t, err := dateparse.ParseAny(wp.ChangeTracking.PreviousScrapeAt); err == nil {
			ct.PreviousScrapeAt = t
		}
	}

	if d := wp.ChangeTracking.Diff; d != nil {
		ct.Diff = &domain.ChangeDiff{Text: d.Text, JSON: d.JSON}
	}

	page.ChangeTracking = ct

	return page
}

func preview(b []byte) string {
	if len(b) > errorBodyPreview {
		return string(b[:errorBodyPreview])
	}

	return string(b)
}

// ParseHeaders decodes the JSON object of extra request headers stored on a website.
func ParseHeaders(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var headers map[string]string
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return nil, fmt.Errorf("%w: headers: %w", coreerrors.ErrInvalidInput, err)
	}

	return headers, nil
}
