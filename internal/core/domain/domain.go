package domain

import (
	"encoding/json"
	"time"
)

// NotificationPreference selects which channels a website notifies through.
type NotificationPreference string

const (
	PreferenceNone    NotificationPreference = "none"
	PreferenceEmail   NotificationPreference = "email"
	PreferenceWebhook NotificationPreference = "webhook"
	PreferenceBoth    NotificationPreference = "both"
)

// IncludesWebhook reports whether the preference selects the webhook channel.
func (p NotificationPreference) IncludesWebhook() bool {
	return p == PreferenceWebhook || p == PreferenceBoth
}

// IncludesEmail reports whether the preference selects the email channel.
func (p NotificationPreference) IncludesEmail() bool {
	return p == PreferenceEmail || p == PreferenceBoth
}

// MonitorType distinguishes single page checks from full site crawls.
type MonitorType string

const (
	MonitorSinglePage MonitorType = "single_page"
	MonitorFullSite   MonitorType = "full_site"
)

// OpportunityStatus is the ledger status of an analyzed opportunity.
type OpportunityStatus string

const (
	StatusMeaningful    OpportunityStatus = "meaningful"
	StatusNotMeaningful OpportunityStatus = "not_meaningful"
)

// StatusFromGo maps a Go/No-Go decision to a ledger status.
func StatusFromGo(isGo bool) OpportunityStatus {
	if isGo {
		return StatusMeaningful
	}

	return StatusNotMeaningful
}

// Change type and status values carried on notifications.
const (
	ChangeTypeContentChanged = "content_changed"
	ChangeStatusChanged      = "changed"
	ChangeStatusNew          = "new"
	VisibilityVisible        = "visible"
)

// DefaultMeaningfulThreshold is used when the user has not set a threshold.
const DefaultMeaningfulThreshold = 70

// ChangeDiff is the change-tracking diff produced by the scraper.
type ChangeDiff struct {
	Text string          `json:"text"`
	JSON json.RawMessage `json:"json,omitempty"`
}

// Website is a monitored page or site.
type Website struct {
	ID                     string
	UserID                 string
	Name                   string
	URL                    string
	MonitorType            MonitorType
	CheckInterval          time.Duration
	IsActive               bool
	NotificationPreference NotificationPreference
	WebhookURL             string
	DeepAnalysisEnabled    bool
	Headers                string // JSON object of extra request headers
	LastChecked            time.Time
	CreatedAt              time.Time
}

// IsDue reports whether the check interval elapsed since the last check.
func (w Website) IsDue(now time.Time) bool {
	if w.LastChecked.IsZero() {
		return true
	}

	return now.Sub(w.LastChecked) >= w.CheckInterval
}

// UserSettings holds per-user AI and notification preferences.
type UserSettings struct {
	UserID                  string
	AIAnalysisEnabled       bool
	AIAPIKey                string
	AIBaseURL               string
	AIModel                 string
	AISystemPrompt          string
	AIThreshold             int
	GoNoGoRules             string
	EmailOnlyIfMeaningful   bool
	WebhookOnlyIfMeaningful bool
	EmailTemplate           string
	DefaultWebhookURL       string
}

// Threshold returns the meaningful-change threshold, falling back to the default.
func (s *UserSettings) Threshold() int {
	if s == nil || s.AIThreshold <= 0 {
		return DefaultMeaningfulThreshold
	}

	return s.AIThreshold
}

// AIReady reports whether AI analysis can run for the user.
func (s *UserSettings) AIReady() bool {
	return s != nil && s.AIAnalysisEnabled && s.AIAPIKey != ""
}

// User is an account known to the record store.
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// UserStats is a user with website counters for the admin listing.
type UserStats struct {
	User
	WebsiteCount       int
	ActiveWebsiteCount int
}

// EmailConfig is the user's notification address.
type EmailConfig struct {
	UserID     string
	Email      string
	IsVerified bool
}

// ScrapeResult is one stored scrape of a website.
type ScrapeResult struct {
	ID               string
	WebsiteID        string
	UserID           string
	URL              string
	Markdown         string
	ChangeStatus     string
	Visibility       string
	PreviousScrapeAt time.Time
	ScrapedAt        time.Time
	Title            string
	Description      string
	OGImage          string
	Metadata         json.RawMessage
	Diff             *ChangeDiff
	AIAnalysis       *FinalAnalysis
}

// ChangeAlert records a detected content change.
type ChangeAlert struct {
	ID             string
	WebsiteID      string
	UserID         string
	ScrapeResultID string
	ChangeType     string
	Summary        string
	CreatedAt      time.Time
}

// Crawl session states.
const (
	CrawlStatusPending   = "pending"
	CrawlStatusCompleted = "completed"
	CrawlStatusFailed    = "failed"
)

// CrawlSession tracks an asynchronous full-site crawl job.
type CrawlSession struct {
	ID          string
	WebsiteID   string
	UserID      string
	JobID       string
	Status      string
	StartedAt   time.Time
	CompletedAt time.Time
	PagesFound  int
}

// Duration returns the crawl duration, or zero while it is still running.
func (c CrawlSession) Duration() time.Duration {
	if c.CompletedAt.IsZero() {
		return 0
	}

	return c.CompletedAt.Sub(c.StartedAt)
}
