package scrape

import (
	"encoding/json"
	"time"

	"github.com/lueurxax/change-observer/internal/core/domain"
)

// Instance types of the scraping provider.
const (
	InstanceCloud      = "cloud"
	InstanceSelfHosted = "self-hosted"
)

// Output formats requested from the provider.
const (
	FormatMarkdown       = "markdown"
	FormatLinks          = "links"
	FormatChangeTracking = "changeTracking"
	ModeGitDiff          = "git-diff"
)

// Crawl job states reported by the provider.
const (
	JobScraping  = "scraping"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Options tune one scrape request.
type Options struct {
	Formats []string
	Headers map[string]string
	Timeout time.Duration
}

// ChangeTrackingOptions returns the options used for monitored pages.
func ChangeTrackingOptions(headers map[string]string, timeout time.Duration) Options {
	return Options{
		Formats: []string{FormatMarkdown, FormatLinks, FormatChangeTracking},
		Headers: headers,
		Timeout: timeout,
	}
}

// Metadata is the page metadata the provider extracts.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	OGImage     string `json:"ogImage"`
	SourceURL   string `json:"sourceURL"`
	StatusCode  int    `json:"statusCode"`
}

// ChangeTracking is the provider's comparison with the previous scrape.
type ChangeTracking struct {
	ChangeStatus     string
	Visibility       string
	PreviousScrapeAt time.Time
	Diff             *domain.ChangeDiff
}

// Page is one scraped page.
type Page struct {
	Markdown       string
	Links          []string
	Metadata       Metadata
	RawMetadata    json.RawMessage
	ChangeTracking *ChangeTracking
}

// HasChange reports whether the page should raise a change alert.
func (p Page) HasChange() bool {
	if p.ChangeTracking == nil {
		return false
	}

	return p.ChangeTracking.ChangeStatus == domain.ChangeStatusChanged || p.ChangeTracking.Diff != nil
}

// Diff returns the change diff, or nil when none was reported.
func (p Page) Diff() *domain.ChangeDiff {
	if p.ChangeTracking == nil {
		return nil
	}

	return p.ChangeTracking.Diff
}

// ChangeStatus returns the provider change status, defaulting to "new".
func (p Page) ChangeStatus() string {
	if p.ChangeTracking == nil || p.ChangeTracking.ChangeStatus == "" {
		return domain.ChangeStatusNew
	}

	return p.ChangeTracking.ChangeStatus
}

// Visibility returns the provider visibility, defaulting to "visible".
func (p Page) Visibility() string {
	if p.ChangeTracking == nil || p.ChangeTracking.Visibility == "" {
		return domain.VisibilityVisible
	}

	return p.ChangeTracking.Visibility
}

// CrawlJob is the state of an asynchronous crawl.
type CrawlJob struct {
	ID        string
	Status    string
	Total     int
	Completed int
	Pages     []Page
}

// Done reports whether the job reached a terminal state.
func (j CrawlJob) Done() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// Wire types.

type scrapeRequest struct {
	URL                   string                 `json:"url"`
	Formats               []string               `json:"formats"`
	Timeout               int64                  `json:"timeout,omitempty"`
	Headers               map[string]string      `json:"headers,omitempty"`
	ChangeTrackingOptions *changeTrackingOptions `json:"changeTrackingOptions,omitempty"`
}

type changeTrackingOptions struct {
	Modes []string `json:"modes"`
}

type crawlRequest struct {
	URL           string        `json:"url"`
	Limit         int           `json:"limit,omitempty"`
	ScrapeOptions crawlScrapeOp `json:"scrapeOptions"`
}

type crawlScrapeOp struct {
	Formats []string `json:"formats"`
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
	ID      string          `json:"id"`
}

type crawlStatusResponse struct {
	Success   *bool      `json:"success"`
	Status    string     `json:"status"`
	Total     int        `json:"total"`
	Completed int        `json:"completed"`
	Error     string     `json:"error"`
	Data      []wirePage `json:"data"`
}

type wirePage struct {
	Markdown       string              `json:"markdown"`
	Links          []string            `json:"links"`
	Metadata       json.RawMessage     `json:"metadata"`
	ChangeTracking *wireChangeTracking `json:"changeTracking"`
}

type wireChangeTracking struct {
	PreviousScrapeAt string `json:"previousScrapeAt"`
	ChangeStatus     string `json:"changeStatus"`
	Visibility       string `json:"visibility"`
	Diff             *struct {
		Text string          `json:"text"`
		JSON json.RawMessage `json:"json"`
	} `json:"diff"`
}
