// Package webhook renders change and crawl events into webhook payloads and
// delivers them, directly or through the relay for private destinations.
package webhook

import (
	"strconv"
	"strings"
	"time"

	"github.com/lueurxax/change-observer/internal/core/domain"
)

// Event names.
const (
	EventWebsiteChanged = "website_changed"
	EventCrawlCompleted = "crawl_completed"
)

const (
	summaryMaxChars     = 200
	markdownMaxChars    = 1000
	defaultSummary      = "Website content has changed"
	crawlNote           = "Individual page changes trigger separate notifications with detailed diffs"
	isoLayout           = "2006-01-02T15:04:05.000Z07:00"
	ellipsis            = "..."
	addedLinePrefix     = "+"
	removedLinePrefix   = "-"
	addedHeaderPrefix   = "+++"
	removedHeaderPrefix = "---"
)

// WebsiteRef identifies the website in a payload.
type WebsiteRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

// DiffLines are the added and removed lines of a git style diff.
type DiffLines struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// ChangeInfo describes the detected change.
type ChangeInfo struct {
	DetectedAt   string     `json:"detectedAt"`
	ChangeType   string     `json:"changeType"`
	ChangeStatus string     `json:"changeStatus"`
	Summary      string     `json:"summary"`
	Diff         *DiffLines `json:"diff,omitempty"`
}

// ScrapeInfo is the stored scrape the change was found in.
type ScrapeInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Markdown    string `json:"markdown"`
}

// AIInfo is the AI analysis attached to a change.
type AIInfo struct {
	MeaningfulChangeScore float64 `json:"meaningfulChangeScore"`
	IsMeaningfulChange    bool    `json:"isMeaningfulChange"`
	Reasoning             string  `json:"reasoning"`
	AnalyzedAt            string  `json:"analyzedAt"`
	Model                 string  `json:"model"`
}

// ChangePayload is the generic website_changed envelope.
type ChangePayload struct {
	Event        string     `json:"event"`
	Timestamp    string     `json:"timestamp"`
	Website      WebsiteRef `json:"website"`
	Change       ChangeInfo `json:"change"`
	ScrapeResult ScrapeInfo `json:"scrapeResult"`
	AIAnalysis   *AIInfo    `json:"aiAnalysis,omitempty"`
}

// CrawlSummary describes a finished crawl.
type CrawlSummary struct {
	SessionID   string  `json:"sessionId"`
	StartedAt   string  `json:"startedAt"`
	CompletedAt *string `json:"completedAt"`
	PagesFound  int     `json:"pagesFound"`
	Duration    *string `json:"duration"`
}

// CrawlPayload is the generic crawl_completed envelope.
type CrawlPayload struct {
	Event        string       `json:"event"`
	Timestamp    string       `json:"timestamp"`
	Website      WebsiteRef   `json:"website"`
	CrawlSummary CrawlSummary `json:"crawlSummary"`
	Note         string       `json:"note"`
}

// BuildChangePayload renders the generic envelope for a change notification.
func BuildChangePayload(n domain.ChangeNotification, now time.Time) ChangePayload {
	p := ChangePayload{
		Event:     EventWebsiteChanged,
		Timestamp: isoTime(now),
		Website: WebsiteRef{
			ID:   n.WebsiteID,
			Name: n.WebsiteName,
			URL:  n.WebsiteURL,
		},
		Change: ChangeInfo{
			DetectedAt:   isoTime(n.ScrapedAt),
			ChangeType:   n.ChangeType,
			ChangeStatus: n.ChangeStatus,
			Summary:      Summary(n.Diff),
		},
		ScrapeResult: ScrapeInfo{
			ID:          n.ScrapeResultID,
			Title:       n.Title,
			Description: n.Description,
			Markdown:    truncateWithEllipsis(n.Markdown, markdownMaxChars),
		},
	}

	if n.Diff != nil {
		lines := SplitDiffLines(n.Diff.Text)
		p.Change.Diff = &lines
	}

	if a := n.AIAnalysis; a != nil {
		p.AIAnalysis = &AIInfo{
			MeaningfulChangeScore: a.MeaningfulChangeScore,
			IsMeaningfulChange:    a.IsMeaningfulChange,
			Reasoning:             a.Reasoning,
			AnalyzedAt:            isoTime(a.AnalyzedAt),
			Model:                 a.Model,
		}
	}

	return p
}

// BuildCrawlPayload renders the generic envelope for a finished crawl.
func BuildCrawlPayload(n domain.CrawlNotification, now time.Time) CrawlPayload {
	summary := CrawlSummary{
		SessionID:  n.Session.ID,
		StartedAt:  isoTime(n.Session.StartedAt),
		PagesFound: n.Session.PagesFound,
	}

	if !n.Session.CompletedAt.IsZero() {
		completed := isoTime(n.Session.CompletedAt)
		duration := crawlDuration(n.Session)
		summary.CompletedAt = &completed
		summary.Duration = &duration
	}

	return CrawlPayload{
		Event:     EventCrawlCompleted,
		Timestamp: isoTime(now),
		Website: WebsiteRef{
			ID:   n.WebsiteID,
			Name: n.WebsiteName,
			URL:  n.WebsiteURL,
			Type: string(domain.MonitorFullSite),
		},
		CrawlSummary: summary,
		Note:         crawlNote,
	}
}

// SplitDiffLines returns the added and removed lines of a diff, prefix stripped,
// in order. File header lines are skipped.
func SplitDiffLines(text string) DiffLines {
	lines := DiffLines{Added: []string{}, Removed: []string{}}

	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, addedHeaderPrefix), strings.HasPrefix(line, removedHeaderPrefix):
			continue
		case strings.HasPrefix(line, addedLinePrefix):
			lines.Added = append(lines.Added, line[1:])
		case strings.HasPrefix(line, removedLinePrefix):
			lines.Removed = append(lines.Removed, line[1:])
		}
	}

	return lines
}

// Summary is the first characters of the diff text, or a fixed sentence without diff.
func Summary(diff *domain.ChangeDiff) string {
	if diff == nil || diff.Text == "" {
		return defaultSummary
	}

	return truncateWithEllipsis(diff.Text, summaryMaxChars)
}

func truncateWithEllipsis(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit]) + ellipsis
}

func isoTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

func crawlDuration(s domain.CrawlSession) string {
	return strconv.Itoa(int(s.Duration().Round(time.Second)/time.Second)) + "s"
}
