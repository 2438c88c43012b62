// Package monitor schedules website checks, routes detected changes to the
// analysis pipeline or straight to notifications, and tracks full-site crawls.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
	"github.com/lueurxax/change-observer/internal/core/scrape"
	"github.com/lueurxax/change-observer/internal/output/webhook"
	"github.com/lueurxax/change-observer/internal/platform/observability"
	"github.com/lueurxax/change-observer/internal/process/analysis"
	"github.com/lueurxax/change-observer/internal/process/notify"
)

// Advisory lock ids used by the periodic tasks.
const (
	SchedulerLockID   int64 = 2001
	CrawlPollLockID   int64 = 2002
	LedgerPruneLockID int64 = 2003
)

// Log keys.
const (
	logKeyWebsiteID = "website_id"
	logKeyURL       = "url"
	logKeyJobID     = "job_id"

	logKeyCorrelation = "correlation_id"
)

const (
	defaultBatchSize  = 50
	defaultCrawlLimit = 10
)

// Store is the record store as seen by the monitor.
type Store interface {
	WithAdvisoryLock(ctx context.Context, lockID int64, fn func(ctx context.Context) error) (bool, error)
	GetWebsite(ctx context.Context, id string) (*domain.Website, error)
	ListDueWebsites(ctx context.Context, now time.Time, limit int) ([]domain.Website, error)
	MarkWebsiteChecked(ctx context.Context, id string, at time.Time) error
	GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error)
	InsertScrapeResult(ctx context.Context, r *domain.ScrapeResult) (string, error)
	InsertChangeAlert(ctx context.Context, alert *domain.ChangeAlert) (string, error)
	InsertCrawlSession(ctx context.Context, s *domain.CrawlSession) (string, error)
	ListPendingCrawlSessions(ctx context.Context, limit int) ([]domain.CrawlSession, error)
	FinishCrawlSession(ctx context.Context, id, status string, pagesFound int, completedAt time.Time) error
}

// Scraper is the scraping provider.
type Scraper interface {
	ScrapeURL(ctx context.Context, pageURL string, opts scrape.Options) (scrape.Page, error)
	CrawlURL(ctx context.Context, siteURL string, limit int) (string, error)
	CheckCrawlStatus(ctx context.Context, jobID string) (scrape.CrawlJob, error)
}

// ChangeAnalyzer runs the AI pipeline for one change.
type ChangeAnalyzer interface {
	AnalyzeChange(ctx context.Context, ev analysis.Event) (analysis.Result, error)
}

// Notifier dispatches change and crawl notifications.
type Notifier interface {
	NotifyChange(ctx context.Context, site domain.Website, settings *domain.UserSettings, change domain.ChangeNotification, directive *domain.NotificationDirective) notify.Report
	NotifyCrawl(ctx context.Context, site domain.Website, settings *domain.UserSettings, crawl domain.CrawlNotification) error
}

// Pruner compacts the dedup ledger.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Config tunes the monitor.
type Config struct {
	ScrapeTimeout     time.Duration
	CrawlPageLimit    int
	BatchSize         int
	Concurrency       int
	CheckInterval     time.Duration
	CrawlPollInterval time.Duration
	PruneInterval     time.Duration
}

// CheckResult summarizes one website check.
type CheckResult struct {
	ScrapeResultID string
	Changed        bool
	Analyzed       bool
	Notified       bool
	CrawlJobID     string
}

// Monitor runs website checks.
type Monitor struct {
	cfg      Config
	store    Store
	scraper  Scraper
	analyzer ChangeAnalyzer
	notifier Notifier
	pruner   Pruner
	now      func() time.Time
	logger   *zerolog.Logger
}

func New(cfg Config, store Store, scraper Scraper, analyzer ChangeAnalyzer, notifier Notifier, pruner Pruner, logger *zerolog.Logger) *Monitor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	if cfg.CrawlPageLimit <= 0 {
		cfg.CrawlPageLimit = defaultCrawlLimit
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	return &Monitor{
		cfg:      cfg,
		store:    store,
		scraper:  scraper,
		analyzer: analyzer,
		notifier: notifier,
		pruner:   pruner,
		now:      time.Now,
		logger:   logger,
	}
}

// CheckWebsiteByID loads and checks one website.
func (m *Monitor) CheckWebsiteByID(ctx context.Context, id string) (CheckResult, error) {
	site, err := m.store.GetWebsite(ctx, id)
	if err != nil {
		return CheckResult{}, fmt.Errorf("load website: %w", err)
	}

	return m.CheckWebsite(ctx, *site)
}

// CheckWebsite scrapes one website with change tracking and routes a detected
// change. Full-site websites start a crawl instead.
func (m *Monitor) CheckWebsite(ctx context.Context, site domain.Website) (CheckResult, error) {
	if site.MonitorType == domain.MonitorFullSite {
		return m.startCrawl(ctx, site)
	}

	headers, err := scrape.ParseHeaders(site.Headers)
	if err != nil {
		m.logger.Warn().Err(err).Str(logKeyWebsiteID, site.ID).Msg("ignoring invalid custom headers")
	}

	page, err := m.scraper.ScrapeURL(ctx, site.URL, scrape.ChangeTrackingOptions(headers, m.cfg.ScrapeTimeout))
	if err != nil {
		observability.ChecksTotal.WithLabelValues(string(site.MonitorType), observability.StatusError).Inc()
		return CheckResult{}, fmt.Errorf("scrape %s: %w", site.URL, err)
	}

	scrapedAt := m.now()
	record := scrapeRecord(site, page, scrapedAt)

	id, err := m.store.InsertScrapeResult(ctx, record)
	if err != nil {
		observability.ChecksTotal.WithLabelValues(string(site.MonitorType), observability.StatusError).Inc()
		return CheckResult{}, fmt.Errorf("store scrape result: %w", err)
	}

	observability.ChecksTotal.WithLabelValues(string(site.MonitorType), observability.StatusSuccess).Inc()

	result := CheckResult{ScrapeResultID: id}
	if !page.HasChange() {
		return result, nil
	}

	result.Changed = true

	observability.ChangesDetected.Inc()

	diff := page.Diff()

	if _, err := m.store.InsertChangeAlert(ctx, &domain.ChangeAlert{
		WebsiteID:      site.ID,
		UserID:         site.UserID,
		ScrapeResultID: id,
		ChangeType:     domain.ChangeTypeContentChanged,
		Summary:        webhook.Summary(diff),
	}); err != nil {
		m.logger.Error().Err(err).Str(logKeyWebsiteID, site.ID).Msg("failed to create change alert")
	}

	change := domain.ChangeNotification{
		WebsiteID:      site.ID,
		WebsiteName:    site.Name,
		WebsiteURL:     site.URL,
		ScrapeResultID: id,
		ChangeType:     domain.ChangeTypeContentChanged,
		ChangeStatus:   page.ChangeStatus(),
		Diff:           diff,
		Title:          page.Metadata.Title,
		Description:    page.Metadata.Description,
		Markdown:       page.Markdown,
		ScrapedAt:      scrapedAt,
	}

	settings, err := m.store.GetUserSettings(ctx, site.UserID)
	if err != nil {
		m.logger.Warn().Err(err).Str(logKeyWebsiteID, site.ID).Msg("failed to load user settings, notifying without ai")
	}

	// With AI enabled the analyzer owns the event, including rejecting it
	// when the key or diff text is missing.
	if settings != nil && settings.AIAnalysisEnabled && diff != nil {
		result.Analyzed = true

		_, err := m.analyzer.AnalyzeChange(ctx, analysis.Event{
			Website:        site,
			ScrapeResultID: id,
			Change:         change,
			PageLinks:      page.Links,
			Settings:       settings,
		})
		if isInputError(err) {
			m.logger.Warn().Err(err).Str(logKeyWebsiteID, site.ID).Msg("dropping change event, ai analysis cannot run")
			return result, nil
		}

		if err != nil {
			return result, fmt.Errorf("analyze change: %w", err)
		}

		result.Notified = true

		return result, nil
	}

	report := m.notifier.NotifyChange(ctx, site, settings, change, nil)
	result.Notified = !report.Decision.None()

	return result, report.Err()
}

func isInputError(err error) bool {
	return errors.Is(err, coreerrors.ErrAIKeyMissing) || errors.Is(err, coreerrors.ErrInvalidInput)
}

// CheckDue checks every active website whose interval elapsed. Sites are marked
// checked before dispatch so a slow check is not picked up again. Returns the
// number of websites dispatched; zero when another instance holds the lock.
func (m *Monitor) CheckDue(ctx context.Context) (int, error) {
	var dispatched int

	acquired, err := m.store.WithAdvisoryLock(ctx, SchedulerLockID, func(ctx context.Context) error {
		now := m.now()

		sites, err := m.store.ListDueWebsites(ctx, now, m.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("list due websites: %w", err)
		}

		due := make([]domain.Website, 0, len(sites))

		for _, site := range sites {
			if err := m.store.MarkWebsiteChecked(ctx, site.ID, now); err != nil {
				m.logger.Error().Err(err).Str(logKeyWebsiteID, site.ID).Msg("failed to mark website checked")
				continue
			}

			due = append(due, site)
		}

		dispatched = len(due)
		correlationID := uuid.New().String()

		m.logger.Info().Str(logKeyCorrelation, correlationID).Int("websites", dispatched).Msg("dispatching due websites")
		m.checkAll(ctx, due)
		m.logger.Info().Str(logKeyCorrelation, correlationID).Msg("due websites checked")

		return nil
	})
	if err != nil {
		return 0, err
	}

	if !acquired {
		m.logger.Debug().Msg("scheduler lock held elsewhere, skipping tick")
	}

	return dispatched, nil
}

// PollCrawls checks pending crawl jobs and sends the completion webhook for
// finished ones.
func (m *Monitor) PollCrawls(ctx context.Context) error {
	_, err := m.store.WithAdvisoryLock(ctx, CrawlPollLockID, func(ctx context.Context) error {
		sessions, err := m.store.ListPendingCrawlSessions(ctx, m.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("list pending crawls: %w", err)
		}

		for _, s := range sessions {
			if err := m.pollCrawl(ctx, s); err != nil {
				m.logger.Error().Err(err).Str(logKeyJobID, s.JobID).Msg("crawl poll failed")
			}
		}

		return nil
	})

	return err
}

// PruneLedger removes expired dedup ledger records.
func (m *Monitor) PruneLedger(ctx context.Context) error {
	if m.pruner == nil {
		return nil
	}

	_, err := m.store.WithAdvisoryLock(ctx, LedgerPruneLockID, func(ctx context.Context) error {
		n, err := m.pruner.Prune(ctx, 0)
		if err != nil {
			return err
		}

		m.logger.Info().Int64("removed", n).Msg("pruned analyzed opportunities")

		return nil
	})

	return err
}

func (m *Monitor) startCrawl(ctx context.Context, site domain.Website) (CheckResult, error) {
	jobID, err := m.scraper.CrawlURL(ctx, site.URL, m.cfg.CrawlPageLimit)
	if err != nil {
		observability.ChecksTotal.WithLabelValues(string(site.MonitorType), observability.StatusError).Inc()
		return CheckResult{}, fmt.Errorf("start crawl %s: %w", site.URL, err)
	}

	if _, err := m.store.InsertCrawlSession(ctx, &domain.CrawlSession{
		WebsiteID: site.ID,
		UserID:    site.UserID,
		JobID:     jobID,
		Status:    domain.CrawlStatusPending,
		StartedAt: m.now(),
	}); err != nil {
		return CheckResult{CrawlJobID: jobID}, fmt.Errorf("store crawl session: %w", err)
	}

	observability.ChecksTotal.WithLabelValues(string(site.MonitorType), observability.StatusSuccess).Inc()
	m.logger.Info().Str(logKeyWebsiteID, site.ID).Str(logKeyJobID, jobID).Msg("crawl started")

	return CheckResult{CrawlJobID: jobID}, nil
}

func (m *Monitor) pollCrawl(ctx context.Context, s domain.CrawlSession) error {
	job, err := m.scraper.CheckCrawlStatus(ctx, s.JobID)
	if err != nil {
		return fmt.Errorf("check crawl status: %w", err)
	}

	if !job.Done() {
		return nil
	}

	status := domain.CrawlStatusCompleted
	if job.Status == scrape.JobFailed {
		status = domain.CrawlStatusFailed
	}

	pages := job.Completed
	if pages == 0 {
		pages = len(job.Pages)
	}

	s.Status = status
	s.PagesFound = pages
	s.CompletedAt = m.now()

	if err := m.store.FinishCrawlSession(ctx, s.ID, status, pages, s.CompletedAt); err != nil {
		return fmt.Errorf("finish crawl session: %w", err)
	}

	observability.CrawlSessions.WithLabelValues(status).Inc()

	if status != domain.CrawlStatusCompleted {
		return nil
	}

	site, err := m.store.GetWebsite(ctx, s.WebsiteID)
	if err != nil {
		return fmt.Errorf("load crawled website: %w", err)
	}

	settings, err := m.store.GetUserSettings(ctx, site.UserID)
	if err != nil && !errors.Is(err, coreerrors.ErrNotFound) {
		m.logger.Warn().Err(err).Str(logKeyWebsiteID, site.ID).Msg("failed to load user settings for crawl notification")
	}

	return m.notifier.NotifyCrawl(ctx, *site, settings, domain.CrawlNotification{
		WebsiteID:   site.ID,
		WebsiteName: site.Name,
		WebsiteURL:  site.URL,
		Session:     s,
	})
}

func scrapeRecord(site domain.Website, page scrape.Page, scrapedAt time.Time) *domain.ScrapeResult {
	record := &domain.ScrapeResult{
		WebsiteID:    site.ID,
		UserID:       site.UserID,
		URL:          site.URL,
		Markdown:     page.Markdown,
		ChangeStatus: page.ChangeStatus(),
		Visibility:   page.Visibility(),
		ScrapedAt:    scrapedAt,
		Title:        page.Metadata.Title,
		Description:  page.Metadata.Description,
		OGImage:      page.Metadata.OGImage,
		Metadata:     page.RawMetadata,
		Diff:         page.Diff(),
	}

	if page.ChangeTracking != nil {
		record.PreviousScrapeAt = page.ChangeTracking.PreviousScrapeAt
	}

	return record
}
