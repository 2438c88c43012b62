package monitor

import (
	"context"

	"github.com/lueurxax/change-observer/internal/core/domain"
	"github.com/lueurxax/change-observer/internal/platform/worker"
)

// Run drives the periodic tasks until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	return worker.TickerLoop(ctx, worker.TickerConfig{
		Name:       "monitor",
		RunOnStart: true,
		Logger:     m.logger,
		Tasks: []worker.TickerTask{
			{
				Name:     "check-due",
				Interval: m.cfg.CheckInterval,
				Run: func(ctx context.Context) error {
					_, err := m.CheckDue(ctx)
					return err
				},
			},
			{
				Name:     "poll-crawls",
				Interval: m.cfg.CrawlPollInterval,
				Run:      m.PollCrawls,
			},
			{
				Name:     "prune-ledger",
				Interval: m.cfg.PruneInterval,
				Run:      m.PruneLedger,
			},
		},
	})
}

// checkAll runs the checks with the configured concurrency. Each check is an
// independent task: a failure is logged and does not affect the others.
func (m *Monitor) checkAll(ctx context.Context, sites []domain.Website) {
	worker.ForEach(ctx, m.cfg.Concurrency, sites, func(ctx context.Context, site domain.Website) error {
		defer worker.RecoverPanic(m.logger, "check website")

		_, err := m.CheckWebsite(ctx, site)

		return err
	}, func(site domain.Website, err error) {
		m.logger.Error().Err(err).Str(logKeyWebsiteID, site.ID).Str(logKeyURL, site.URL).Msg("website check failed")
	})
}
