// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires configuration, the record store, the scraping and AI
// providers and the notification channels, and exposes the operational modes:
//
//   - Worker mode: periodic website checks, crawl polling and ledger pruning
//   - Check mode: one website, or one pass over the due websites, then exit
//   - HTTP: health, metrics, the webhook relay and the admin endpoints
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lueurxax/change-observer/internal/admin"
	"github.com/lueurxax/change-observer/internal/core/links"
	"github.com/lueurxax/change-observer/internal/core/llm"
	"github.com/lueurxax/change-observer/internal/core/scrape"
	"github.com/lueurxax/change-observer/internal/output/email"
	"github.com/lueurxax/change-observer/internal/output/webhook"
	"github.com/lueurxax/change-observer/internal/platform/config"
	"github.com/lueurxax/change-observer/internal/platform/observability"
	"github.com/lueurxax/change-observer/internal/process/analysis"
	"github.com/lueurxax/change-observer/internal/process/dedup"
	"github.com/lueurxax/change-observer/internal/process/deepanalysis"
	"github.com/lueurxax/change-observer/internal/process/monitor"
	"github.com/lueurxax/change-observer/internal/process/notify"
	db "github.com/lueurxax/change-observer/internal/storage"
)

const (
	webhookProxyPath = "/api/webhook-proxy"
	adminPathPrefix  = "/admin/"
	fetcherScraper   = "scraper"
	fetcherDirect    = "direct"
	logFieldAddr     = "addr"
	logFieldProvider = "provider"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger

	redis   redis.UniversalClient
	monitor *monitor.Monitor
}

func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// Init builds the processing graph. It must be called before any run mode.
func (a *App) Init(ctx context.Context) error {
	scraper := scrape.New(scrape.Config{
		APIKey:       a.cfg.FirecrawlAPIKey,
		APIURL:       a.cfg.FirecrawlAPIURL,
		InstanceType: a.cfg.FirecrawlInstanceType,
		Timeout:      a.cfg.ScrapeTimeout,
	}, a.logger)

	if !scraper.Enabled() {
		a.logger.Warn().Msg("FIRECRAWL_API_KEY is not set, website checks will fail")
	}

	classifier := llm.New(llm.Options{
		DefaultBaseURL:  a.cfg.AIDefaultBaseURL,
		DefaultModel:    a.cfg.AIDefaultModel,
		RateLimitRPS:    a.cfg.AIRateLimitRPS,
		RequestTimeout:  a.cfg.AIRequestTimeout,
		ContentMaxChars: a.cfg.DeepContentMaxChars,
	}, a.logger)

	ledger := a.newLedger(ctx)

	notifier, err := a.newNotifier(ctx)
	if err != nil {
		return err
	}

	evaluator := deepanalysis.New(classifier, a.newContentFetcher(scraper), ledger, a.logger)
	analyzer := analysis.New(a.database, classifier, evaluator, notifier, a.logger)

	a.monitor = monitor.New(monitor.Config{
		ScrapeTimeout:     a.cfg.ScrapeTimeout,
		CrawlPageLimit:    a.cfg.CrawlPageLimit,
		BatchSize:         a.cfg.CheckBatchSize,
		Concurrency:       a.cfg.EventConcurrency,
		CheckInterval:     a.cfg.CheckTickInterval,
		CrawlPollInterval: a.cfg.CrawlPollInterval,
		PruneInterval:     a.cfg.DedupPruneInterval,
	}, a.database, scraper, analyzer, notifier, ledger, a.logger)

	return nil
}

// Close releases clients opened by Init.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
}

// StartHealthServer starts the health, metrics, relay and admin server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)
	srv.Handle(webhookProxyPath, webhook.NewProxyHandler(a.cfg.UserAgent(), a.cfg.WebhookProxySecret, 0, a.logger))
	srv.Handle(adminPathPrefix, a.adminHandler())

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunWorker runs the periodic tasks until ctx is canceled.
func (a *App) RunWorker(ctx context.Context) error {
	a.logger.Info().
		Dur("check_interval", a.cfg.CheckTickInterval).
		Dur("crawl_poll_interval", a.cfg.CrawlPollInterval).
		Int("concurrency", a.cfg.EventConcurrency).
		Msg("Starting worker mode")

	if err := a.monitor.Run(ctx); err != nil {
		return fmt.Errorf("monitor run: %w", err)
	}

	return nil
}

// RunCheckOnce checks one website, or every due website when websiteID is empty.
func (a *App) RunCheckOnce(ctx context.Context, websiteID string) error {
	if websiteID != "" {
		res, err := a.monitor.CheckWebsiteByID(ctx, websiteID)
		if err != nil {
			return fmt.Errorf("check website: %w", err)
		}

		a.logger.Info().
			Str("website_id", websiteID).
			Bool("changed", res.Changed).
			Bool("analyzed", res.Analyzed).
			Bool("notified", res.Notified).
			Str("crawl_job_id", res.CrawlJobID).
			Msg("website checked")

		return nil
	}

	n, err := a.monitor.CheckDue(ctx)
	if err != nil {
		return fmt.Errorf("check due websites: %w", err)
	}

	a.logger.Info().Int("websites", n).Msg("due websites checked")

	if err := a.monitor.PollCrawls(ctx); err != nil {
		return fmt.Errorf("poll crawls: %w", err)
	}

	return nil
}

func (a *App) adminHandler() http.Handler {
	if len(a.cfg.AdminEmails) == 0 {
		a.logger.Warn().Msg("ADMIN_EMAILS is empty, admin endpoints will deny every request")
	}

	mux := http.NewServeMux()
	admin.NewHandler(
		admin.NewService(a.database),
		admin.NewAuthorizer(a.cfg.AdminEmails),
		a.cfg.AdminIdentityHeader,
		a.logger,
	).Register(mux)

	return mux
}

func (a *App) newLedger(ctx context.Context) *dedup.Ledger {
	var opts []dedup.Option

	if a.cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			a.logger.Warn().Err(err).Str(logFieldAddr, a.cfg.RedisAddr).Msg("redis unreachable, ledger runs without cache")

			if cerr := client.Close(); cerr != nil {
				a.logger.Debug().Err(cerr).Msg("failed to close redis client")
			}
		} else {
			a.redis = client
			opts = append(opts, dedup.WithCache(dedup.NewRedisCache(client)))
			a.logger.Info().Str(logFieldAddr, a.cfg.RedisAddr).Msg("ledger cache enabled")
		}
	}

	return dedup.New(a.database, a.cfg.DedupWindow, a.logger, opts...)
}

func (a *App) newNotifier(ctx context.Context) (*notify.Notifier, error) {
	mailer, err := email.NewSender(ctx, email.SenderConfig{
		Provider:     a.cfg.EmailProvider,
		ResendAPIKey: a.cfg.ResendAPIKey,
		ResendURL:    a.cfg.ResendAPIURL,
		AWSRegion:    a.cfg.AWSRegion,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("email sender init: %w", err)
	}

	a.logger.Info().Str(logFieldProvider, a.cfg.EmailProvider).Msg("email provider configured")

	if a.cfg.WebhookProxyURL == "" {
		a.logger.Warn().Msg("WEBHOOK_PROXY_URL is not set, private webhook destinations will fail")
	}

	loc := a.cfg.Location()
	hooks := webhook.NewSender(webhook.Config{
		ProxyURL:    a.cfg.WebhookProxyURL,
		ProxySecret: a.cfg.WebhookProxySecret,
		UserAgent:   a.cfg.UserAgent(),
		Location:    loc,
	}, a.logger)

	return notify.NewNotifier(
		hooks,
		mailer,
		email.NewRenderer(a.cfg.AppURL, loc),
		a.database,
		a.cfg.SenderAddress(),
		a.logger,
	), nil
}

// newContentFetcher returns the deep analysis fetch chain: the scraping provider
// first, then a direct fetch with local extraction when enabled.
func (a *App) newContentFetcher(scraper *scrape.Client) links.ContentFetcher {
	fetchers := []links.NamedFetcher{{Name: fetcherScraper, Fetcher: scraper}}

	if a.cfg.DeepFetchFallbackEnabled || !scraper.Enabled() {
		web := links.NewWebFetcher(a.cfg.WebFetchRPS, a.cfg.WebFetchTimeout, a.cfg.UserAgent())
		fetchers = append(fetchers, links.NamedFetcher{
			Name:    fetcherDirect,
			Fetcher: links.NewDirectFetcher(web, a.cfg.DeepContentMaxChars, a.cfg.WebFetchTimeout),
		})
	}

	return links.NewChainFetcher(a.logger, fetchers...)
}
