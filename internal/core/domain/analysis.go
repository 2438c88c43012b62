package domain

import "time"

// ClassificationVerdict is the primary classifier's structured answer for one diff.
// IsMeaningful is what the model reported; the pipeline recomputes meaningfulness
// from Score and the user threshold.
type ClassificationVerdict struct {
	Score               float64
	IsMeaningful        bool
	Reasoning           string
	RelevantLinkIndices []int
	// RelevantURLs are the candidate links the verdict resolved to.
	RelevantURLs []string
}

// MeetsThreshold reports whether the score reaches the threshold.
func (v ClassificationVerdict) MeetsThreshold(threshold int) bool {
	return v.Score >= float64(threshold)
}

// DeepVerdict is the Go/No-Go result for one candidate link.
// Err is set when fetching or classifying the link failed.
type DeepVerdict struct {
	URL       string
	Score     float64
	IsGo      bool
	Reasoning string
	Err       error
}

// Failed reports whether this verdict is an error entry.
func (v DeepVerdict) Failed() bool {
	return v.Err != nil
}

// AnalyzedOpportunity is a dedup ledger entry.
type AnalyzedOpportunity struct {
	URL        string
	UserID     string
	WebsiteID  string
	Status     OpportunityStatus
	Score      float64
	AnalyzedAt time.Time
}

// FinalAnalysis is the durable AI outcome attached to a scrape result.
type FinalAnalysis struct {
	MeaningfulChangeScore float64   `json:"meaningfulChangeScore"`
	IsMeaningfulChange    bool      `json:"isMeaningfulChange"`
	Reasoning             string    `json:"reasoning"`
	AnalyzedAt            time.Time `json:"analyzedAt"`
	Model                 string    `json:"model"`
}

// NotificationDirective carries the classification outcome to the notification stage.
type NotificationDirective struct {
	IsMeaningful bool
	Suppress     bool
	Reasoning    string
}

// ChangeNotification is the channel-independent content of a change notification.
type ChangeNotification struct {
	WebsiteID      string
	WebsiteName    string
	WebsiteURL     string
	ScrapeResultID string
	ChangeType     string
	ChangeStatus   string
	Diff           *ChangeDiff
	Title          string
	Description    string
	Markdown       string
	ScrapedAt      time.Time
	AIAnalysis     *FinalAnalysis
}

// CrawlNotification is the content of a crawl completion notification.
type CrawlNotification struct {
	WebsiteID   string
	WebsiteName string
	WebsiteURL  string
	Session     CrawlSession
}
