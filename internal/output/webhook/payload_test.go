package webhook

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/change-observer/internal/core/domain"
)

var testScrapedAt = time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

func testNotification() domain.ChangeNotification {
	return domain.ChangeNotification{
		WebsiteID:      "site-1",
		WebsiteName:    "Marchés <Publics> & Co",
		WebsiteURL:     "https://x.org/appels",
		ScrapeResultID: "scrape-1",
		ChangeType:     domain.ChangeTypeContentChanged,
		ChangeStatus:   domain.ChangeStatusChanged,
		Diff:           &domain.ChangeDiff{Text: "+New tender: Road construction\n-Old notice"},
		Title:          "Appels d'offres",
		Markdown:       "# Appels",
		ScrapedAt:      testScrapedAt,
		AIAnalysis: &domain.FinalAnalysis{
			MeaningfulChangeScore: 85,
			IsMeaningfulChange:    true,
			Reasoning:             "✅ [85/100]\n<https://x.org/tender/1|Voir l'annonce>\nok",
			AnalyzedAt:            testScrapedAt,
			Model:                 "gpt-4o-mini",
		},
	}
}

func testCrawl() domain.CrawlNotification {
	return domain.CrawlNotification{
		WebsiteID:   "site-1",
		WebsiteName: "Site",
		WebsiteURL:  "https://x.org",
		Session: domain.CrawlSession{
			ID:          "crawl-1",
			StartedAt:   testScrapedAt,
			CompletedAt: testScrapedAt.Add(95 * time.Second),
			PagesFound:  7,
		},
	}
}

func TestSplitDiffLines(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantAdded   []string
		wantRemoved []string
	}{
		{
			name:        "simple",
			text:        "+New tender: Road construction\n-Old notice",
			wantAdded:   []string{"New tender: Road construction"},
			wantRemoved: []string{"Old notice"},
		},
		{
			name:        "headers and context skipped",
			text:        "--- a/page\n+++ b/page\n@@ -1 +1 @@\n unchanged\n+a\n+b\n-c",
			wantAdded:   []string{"a", "b"},
			wantRemoved: []string{"c"},
		},
		{
			name:        "empty",
			text:        "",
			wantAdded:   []string{},
			wantRemoved: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitDiffLines(tt.text)
			assert.Equal(t, tt.wantAdded, got.Added)
			assert.Equal(t, tt.wantRemoved, got.Removed)
		})
	}
}

func TestSummary(t *testing.T) {
	assert.Equal(t, defaultSummary, Summary(nil))
	assert.Equal(t, defaultSummary, Summary(&domain.ChangeDiff{}))
	assert.Equal(t, "+a", Summary(&domain.ChangeDiff{Text: "+a"}))

	long := strings.Repeat("é", 250)
	got := Summary(&domain.ChangeDiff{Text: long})
	assert.Equal(t, strings.Repeat("é", 200)+"...", got)
}

func TestBuildChangePayload(t *testing.T) {
	n := testNotification()
	n.Markdown = strings.Repeat("m", 1200)

	p := BuildChangePayload(n, testScrapedAt.Add(time.Minute))

	assert.Equal(t, EventWebsiteChanged, p.Event)
	assert.Equal(t, "2026-03-10T12:31:00.000Z", p.Timestamp)
	assert.Equal(t, "2026-03-10T12:30:00.000Z", p.Change.DetectedAt)
	assert.Equal(t, "site-1", p.Website.ID)
	assert.Len(t, p.ScrapeResult.Markdown, 1003)
	require.NotNil(t, p.Change.Diff)
	assert.Equal(t, []string{"New tender: Road construction"}, p.Change.Diff.Added)
	require.NotNil(t, p.AIAnalysis)
	assert.InDelta(t, 85, p.AIAnalysis.MeaningfulChangeScore, 0.001)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"scrapeResult":{"id":"scrape-1"`)
	assert.NotContains(t, string(raw), `"type"`)
}

func TestBuildChangePayload_WithoutAI(t *testing.T) {
	n := testNotification()
	n.AIAnalysis = nil
	n.Diff = nil

	raw, err := json.Marshal(BuildChangePayload(n, testScrapedAt))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "aiAnalysis")
	assert.NotContains(t, string(raw), `"diff"`)
	assert.Contains(t, string(raw), defaultSummary)
}

func TestBuildCrawlPayload(t *testing.T) {
	n := testCrawl()

	p := BuildCrawlPayload(n, testScrapedAt)
	assert.Equal(t, EventCrawlCompleted, p.Event)
	assert.Equal(t, "full_site", p.Website.Type)
	require.NotNil(t, p.CrawlSummary.Duration)
	assert.Equal(t, "95s", *p.CrawlSummary.Duration)
	assert.Equal(t, 7, p.CrawlSummary.PagesFound)

	n.Session.CompletedAt = time.Time{}
	raw, err := json.Marshal(BuildCrawlPayload(n, testScrapedAt))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"completedAt":null`)
	assert.Contains(t, string(raw), `"duration":null`)
}
