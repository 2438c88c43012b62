package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
	"github.com/lueurxax/change-observer/internal/core/scrape"
	"github.com/lueurxax/change-observer/internal/process/analysis"
	"github.com/lueurxax/change-observer/internal/process/notify"
)

const testSiteURL = "https://tenders.example.com"

var (
	errScrapeDown     = errors.New("scrape down")
	errClassifierDown = errors.New("classifier down")
)

type fakeStore struct {
	mu        sync.Mutex
	lockHeld  bool
	sites     map[string]domain.Website
	settings  *domain.UserSettings
	results   []domain.ScrapeResult
	alerts    []domain.ChangeAlert
	crawls    []domain.CrawlSession
	pending   []domain.CrawlSession
	finished  map[string]string
	checked   []string
	lockCalls []int64
}

func newFakeStore(sites ...domain.Website) *fakeStore {
	s := &fakeStore{sites: make(map[string]domain.Website), finished: make(map[string]string)}
	for _, site := range sites {
		s.sites[site.ID] = site
	}

	return s
}

func (s *fakeStore) WithAdvisoryLock(ctx context.Context, lockID int64, fn func(ctx context.Context) error) (bool, error) {
	s.mu.Lock()
	s.lockCalls = append(s.lockCalls, lockID)
	held := s.lockHeld
	s.mu.Unlock()

	if held {
		return false, nil
	}

	return true, fn(ctx)
}

func (s *fakeStore) GetWebsite(_ context.Context, id string) (*domain.Website, error) {
	site, ok := s.sites[id]
	if !ok {
		return nil, errors.New("missing website")
	}

	return &site, nil
}

func (s *fakeStore) ListDueWebsites(_ context.Context, now time.Time, _ int) ([]domain.Website, error) {
	var due []domain.Website

	for _, site := range s.sites {
		if site.IsActive && site.IsDue(now) {
			due = append(due, site)
		}
	}

	return due, nil
}

func (s *fakeStore) MarkWebsiteChecked(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checked = append(s.checked, id)

	return nil
}

func (s *fakeStore) GetUserSettings(_ context.Context, userID string) (*domain.UserSettings, error) {
	if s.settings == nil {
		return &domain.UserSettings{UserID: userID, AIThreshold: domain.DefaultMeaningfulThreshold}, nil
	}

	return s.settings, nil
}

func (s *fakeStore) InsertScrapeResult(_ context.Context, r *domain.ScrapeResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, *r)

	return "scrape-1", nil
}

func (s *fakeStore) InsertChangeAlert(_ context.Context, a *domain.ChangeAlert) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, *a)

	return "alert-1", nil
}

func (s *fakeStore) InsertCrawlSession(_ context.Context, c *domain.CrawlSession) (string, error) {
	s.crawls = append(s.crawls, *c)
	return "crawl-1", nil
}

func (s *fakeStore) ListPendingCrawlSessions(context.Context, int) ([]domain.CrawlSession, error) {
	return s.pending, nil
}

func (s *fakeStore) FinishCrawlSession(_ context.Context, id, status string, _ int, _ time.Time) error {
	s.finished[id] = status
	return nil
}

type fakeScraper struct {
	page  scrape.Page
	err   error
	jobs  map[string]scrape.CrawlJob
	crawl string
}

func (f *fakeScraper) ScrapeURL(context.Context, string, scrape.Options) (scrape.Page, error) {
	return f.page, f.err
}

func (f *fakeScraper) CrawlURL(context.Context, string, int) (string, error) {
	return f.crawl, f.err
}

func (f *fakeScraper) CheckCrawlStatus(_ context.Context, jobID string) (scrape.CrawlJob, error) {
	return f.jobs[jobID], nil
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	events []analysis.Event
	err    error
}

func (f *fakeAnalyzer) AnalyzeChange(_ context.Context, ev analysis.Event) (analysis.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, ev)

	return analysis.Result{}, f.err
}

type fakeNotifier struct {
	mu         sync.Mutex
	changes    []domain.ChangeNotification
	directives []*domain.NotificationDirective
	crawls     []domain.CrawlNotification
}

func (f *fakeNotifier) NotifyChange(_ context.Context, _ domain.Website, _ *domain.UserSettings, change domain.ChangeNotification, directive *domain.NotificationDirective) notify.Report {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.changes = append(f.changes, change)
	f.directives = append(f.directives, directive)

	return notify.Report{Decision: notify.Decision{SendWebhook: true}}
}

func (f *fakeNotifier) NotifyCrawl(_ context.Context, _ domain.Website, _ *domain.UserSettings, crawl domain.CrawlNotification) error {
	f.crawls = append(f.crawls, crawl)
	return nil
}

type fakePruner struct {
	calls int
}

func (p *fakePruner) Prune(context.Context, time.Duration) (int64, error) {
	p.calls++
	return 3, nil
}

func testSite(id string) domain.Website {
	return domain.Website{
		ID:                     id,
		UserID:                 "user-1",
		Name:                   "Tenders",
		URL:                    testSiteURL,
		MonitorType:            domain.MonitorSinglePage,
		CheckInterval:          time.Hour,
		IsActive:               true,
		NotificationPreference: domain.PreferenceWebhook,
		WebhookURL:             "https://hooks.example.com/x",
	}
}

func changedPage() scrape.Page {
	return scrape.Page{
		Markdown: "# Tenders",
		Links:    []string{testSiteURL + "/t/1"},
		Metadata: scrape.Metadata{Title: "Tenders"},
		ChangeTracking: &scrape.ChangeTracking{
			ChangeStatus: domain.ChangeStatusChanged,
			Diff:         &domain.ChangeDiff{Text: "+ New tender /t/1"},
		},
	}
}

type fixture struct {
	store    *fakeStore
	scraper  *fakeScraper
	analyzer *fakeAnalyzer
	notifier *fakeNotifier
	pruner   *fakePruner
	monitor  *Monitor
}

func newFixture(store *fakeStore, scraper *fakeScraper) *fixture {
	logger := zerolog.Nop()

	f := &fixture{
		store:    store,
		scraper:  scraper,
		analyzer: &fakeAnalyzer{},
		notifier: &fakeNotifier{},
		pruner:   &fakePruner{},
	}
	f.monitor = New(Config{Concurrency: 2}, store, scraper, f.analyzer, f.notifier, f.pruner, &logger)

	return f
}

func TestCheckWebsite_Unchanged(t *testing.T) {
	page := scrape.Page{Markdown: "same", ChangeTracking: &scrape.ChangeTracking{ChangeStatus: "same"}}
	f := newFixture(newFakeStore(), &fakeScraper{page: page})

	res, err := f.monitor.CheckWebsite(context.Background(), testSite("site-1"))
	require.NoError(t, err)

	assert.False(t, res.Changed)
	assert.Len(t, f.store.results, 1)
	assert.Empty(t, f.store.alerts)
	assert.Empty(t, f.notifier.changes)
	assert.Empty(t, f.analyzer.events)
}

func TestCheckWebsite_ChangedWithoutAINotifiesImmediately(t *testing.T) {
	f := newFixture(newFakeStore(), &fakeScraper{page: changedPage()})

	res, err := f.monitor.CheckWebsite(context.Background(), testSite("site-1"))
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.False(t, res.Analyzed)
	assert.True(t, res.Notified)
	require.Len(t, f.store.alerts, 1)
	assert.Equal(t, "+ New tender /t/1", f.store.alerts[0].Summary)
	require.Len(t, f.notifier.changes, 1)
	assert.Nil(t, f.notifier.directives[0])
	assert.Equal(t, "scrape-1", f.notifier.changes[0].ScrapeResultID)
	assert.Equal(t, domain.ChangeStatusChanged, f.notifier.changes[0].ChangeStatus)
}

func TestCheckWebsite_ChangedWithAIRunsAnalysis(t *testing.T) {
	store := newFakeStore()
	store.settings = &domain.UserSettings{UserID: "user-1", AIAnalysisEnabled: true, AIAPIKey: "sk-test"}
	f := newFixture(store, &fakeScraper{page: changedPage()})

	res, err := f.monitor.CheckWebsite(context.Background(), testSite("site-1"))
	require.NoError(t, err)

	assert.True(t, res.Analyzed)
	require.Len(t, f.analyzer.events, 1)
	assert.Equal(t, []string{testSiteURL + "/t/1"}, f.analyzer.events[0].PageLinks)
	assert.Same(t, store.settings, f.analyzer.events[0].Settings)
	assert.Empty(t, f.notifier.changes)
}

func TestCheckWebsite_AIEnabledInputErrorDropsEvent(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "missing api key", err: coreerrors.ErrAIKeyMissing},
		{name: "empty diff text", err: fmt.Errorf("analyze change: empty diff: %w", coreerrors.ErrInvalidInput)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.settings = &domain.UserSettings{
				UserID:                  "user-1",
				AIAnalysisEnabled:       true,
				EmailOnlyIfMeaningful:   true,
				WebhookOnlyIfMeaningful: true,
			}
			f := newFixture(store, &fakeScraper{page: changedPage()})
			f.analyzer.err = tt.err

			res, err := f.monitor.CheckWebsite(context.Background(), testSite("site-1"))
			require.NoError(t, err)

			assert.True(t, res.Changed)
			assert.False(t, res.Notified)
			assert.Len(t, f.analyzer.events, 1)
			assert.Empty(t, f.notifier.changes)
		})
	}
}

func TestCheckWebsite_AnalyzerFailureIsReturned(t *testing.T) {
	store := newFakeStore()
	store.settings = &domain.UserSettings{UserID: "user-1", AIAnalysisEnabled: true, AIAPIKey: "sk-test"}
	f := newFixture(store, &fakeScraper{page: changedPage()})
	f.analyzer.err = errClassifierDown

	_, err := f.monitor.CheckWebsite(context.Background(), testSite("site-1"))
	require.ErrorIs(t, err, errClassifierDown)
	assert.Empty(t, f.notifier.changes)
}

func TestCheckWebsite_ScrapeError(t *testing.T) {
	f := newFixture(newFakeStore(), &fakeScraper{err: errScrapeDown})

	_, err := f.monitor.CheckWebsite(context.Background(), testSite("site-1"))
	require.ErrorIs(t, err, errScrapeDown)
	assert.Empty(t, f.store.results)
}

func TestCheckWebsite_FullSiteStartsCrawl(t *testing.T) {
	f := newFixture(newFakeStore(), &fakeScraper{crawl: "job-7"})

	site := testSite("site-1")
	site.MonitorType = domain.MonitorFullSite

	res, err := f.monitor.CheckWebsite(context.Background(), site)
	require.NoError(t, err)

	assert.Equal(t, "job-7", res.CrawlJobID)
	require.Len(t, f.store.crawls, 1)
	assert.Equal(t, domain.CrawlStatusPending, f.store.crawls[0].Status)
}

func TestCheckDue(t *testing.T) {
	fresh := testSite("site-fresh")
	fresh.LastChecked = time.Now()

	inactive := testSite("site-off")
	inactive.IsActive = false

	store := newFakeStore(testSite("site-1"), testSite("site-2"), fresh, inactive)
	f := newFixture(store, &fakeScraper{page: changedPage()})

	n, err := f.monitor.CheckDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"site-1", "site-2"}, store.checked)
	assert.Len(t, f.notifier.changes, 2)
	assert.Equal(t, []int64{SchedulerLockID}, store.lockCalls)
}

func TestCheckDue_LockHeldElsewhere(t *testing.T) {
	store := newFakeStore(testSite("site-1"))
	store.lockHeld = true
	f := newFixture(store, &fakeScraper{page: changedPage()})

	n, err := f.monitor.CheckDue(context.Background())
	require.NoError(t, err)

	assert.Zero(t, n)
	assert.Empty(t, store.checked)
}

func TestPollCrawls(t *testing.T) {
	site := testSite("site-1")
	store := newFakeStore(site)
	store.pending = []domain.CrawlSession{
		{ID: "c-done", WebsiteID: site.ID, JobID: "job-done", StartedAt: time.Now().Add(-time.Minute)},
		{ID: "c-running", WebsiteID: site.ID, JobID: "job-running"},
		{ID: "c-failed", WebsiteID: site.ID, JobID: "job-failed"},
	}

	scraper := &fakeScraper{jobs: map[string]scrape.CrawlJob{
		"job-done":    {ID: "job-done", Status: scrape.JobCompleted, Completed: 4},
		"job-running": {ID: "job-running", Status: scrape.JobScraping},
		"job-failed":  {ID: "job-failed", Status: scrape.JobFailed},
	}}
	f := newFixture(store, scraper)

	require.NoError(t, f.monitor.PollCrawls(context.Background()))

	assert.Equal(t, map[string]string{
		"c-done":   domain.CrawlStatusCompleted,
		"c-failed": domain.CrawlStatusFailed,
	}, store.finished)
	require.Len(t, f.notifier.crawls, 1)
	assert.Equal(t, 4, f.notifier.crawls[0].Session.PagesFound)
	assert.False(t, f.notifier.crawls[0].Session.CompletedAt.IsZero())
}

func TestPruneLedger(t *testing.T) {
	store := newFakeStore()
	f := newFixture(store, &fakeScraper{})

	require.NoError(t, f.monitor.PruneLedger(context.Background()))

	assert.Equal(t, 1, f.pruner.calls)
	assert.Equal(t, []int64{LedgerPruneLockID}, store.lockCalls)
}
