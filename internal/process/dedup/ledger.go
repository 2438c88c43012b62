// Package dedup implements the analyzed-opportunity ledger that keeps the
// deep analysis from re-evaluating a link the user saw recently.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
	"github.com/lueurxax/change-observer/internal/platform/observability"
)

// DefaultWindow is how long a ledger record suppresses re-analysis.
const DefaultWindow = 30 * 24 * time.Hour

// Log keys.
const (
	logKeyURL    = "url"
	logKeyUserID = "user_id"
)

// Repository is the durable ledger store.
type Repository interface {
	GetAnalyzedOpportunity(ctx context.Context, url, userID string) (*domain.AnalyzedOpportunity, error)
	UpsertAnalyzedOpportunity(ctx context.Context, op *domain.AnalyzedOpportunity) error
	DeleteAnalyzedOpportunitiesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cache fronts the repository for fresh records. Entries expire on their own.
type Cache interface {
	Get(ctx context.Context, url, userID string) (*domain.AnalyzedOpportunity, error)
	Set(ctx context.Context, op domain.AnalyzedOpportunity, ttl time.Duration) error
}

// Ledger records analyzed opportunity URLs per user and answers freshness queries.
// Two concurrent checks of the same URL can both pass the freshness check; the
// later Store wins.
type Ledger struct {
	repo   Repository
	cache  Cache
	window time.Duration
	now    func() time.Time
	logger *zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithCache puts a cache in front of the repository.
func WithCache(c Cache) Option {
	return func(l *Ledger) {
		l.cache = c
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New creates a ledger. A non-positive window falls back to DefaultWindow.
func New(repo Repository, window time.Duration, logger *zerolog.Logger, opts ...Option) *Ledger {
	if window <= 0 {
		window = DefaultWindow
	}

	l := &Ledger{
		repo:   repo,
		window: window,
		now:    time.Now,
		logger: logger,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Window returns the freshness window.
func (l *Ledger) Window() time.Duration {
	return l.window
}

// IsFresh reports whether the record is younger than the window.
func (l *Ledger) IsFresh(op *domain.AnalyzedOpportunity) bool {
	if op == nil {
		return false
	}

	return l.now().Sub(op.AnalyzedAt) < l.window
}

// Lookup returns the ledger record for url and user, or nil when there is none.
// Expired records are returned as well; use IsFresh to filter them.
func (l *Ledger) Lookup(ctx context.Context, url, userID string) (*domain.AnalyzedOpportunity, error) {
	if l.cache != nil {
		op, err := l.cache.Get(ctx, url, userID)
		if err != nil {
			l.logger.Warn().Err(err).Str(logKeyURL, url).Msg("ledger cache read failed")
		} else if op != nil {
			observability.LedgerLookups.WithLabelValues(observability.ResultCacheHit).Inc()
			return op, nil
		}
	}

	op, err := l.repo.GetAnalyzedOpportunity(ctx, url, userID)
	if err != nil {
		if errors.Is(err, coreerrors.ErrNotFound) {
			observability.LedgerLookups.WithLabelValues(observability.ResultMiss).Inc()
			return nil, nil
		}

		observability.LedgerLookups.WithLabelValues(observability.StatusError).Inc()

		return nil, fmt.Errorf("lookup ledger: %w", err)
	}

	if l.IsFresh(op) {
		observability.LedgerLookups.WithLabelValues(observability.ResultFresh).Inc()
		l.cacheRecord(ctx, *op)
	} else {
		observability.LedgerLookups.WithLabelValues(observability.ResultStale).Inc()
	}

	return op, nil
}

// Partition splits urls into those that need analysis and those analyzed within
// the window. A failed lookup counts as not fresh so the URL is re-analyzed.
func (l *Ledger) Partition(ctx context.Context, urls []string, userID string) (pending, skipped []string) {
	for _, url := range urls {
		op, err := l.Lookup(ctx, url, userID)
		if err != nil {
			l.logger.Warn().Err(err).Str(logKeyURL, url).Str(logKeyUserID, userID).Msg("ledger lookup failed, analyzing anyway")
			pending = append(pending, url)

			continue
		}

		if l.IsFresh(op) {
			l.logger.Debug().Str(logKeyURL, url).Time("analyzed_at", op.AnalyzedAt).Msg("skipping recently analyzed link")
			skipped = append(skipped, url)

			continue
		}

		pending = append(pending, url)
	}

	return pending, skipped
}

// Store records a verdict for url and user, stamped with the current time.
func (l *Ledger) Store(ctx context.Context, url, userID, websiteID string, status domain.OpportunityStatus, score float64) error {
	op := domain.AnalyzedOpportunity{
		URL:        url,
		UserID:     userID,
		WebsiteID:  websiteID,
		Status:     status,
		Score:      score,
		AnalyzedAt: l.now(),
	}

	if err := l.repo.UpsertAnalyzedOpportunity(ctx, &op); err != nil {
		return fmt.Errorf("store ledger record: %w", err)
	}

	l.cacheRecord(ctx, op)

	return nil
}

// Prune deletes records older than olderThan, or older than the window when
// olderThan is not positive.
func (l *Ledger) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = l.window
	}

	n, err := l.repo.DeleteAnalyzedOpportunitiesBefore(ctx, l.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}

	observability.LedgerPruned.Add(float64(n))

	return n, nil
}

func (l *Ledger) cacheRecord(ctx context.Context, op domain.AnalyzedOpportunity) {
	if l.cache == nil {
		return
	}

	ttl := l.window - l.now().Sub(op.AnalyzedAt)
	if ttl <= 0 {
		return
	}

	if err := l.cache.Set(ctx, op, ttl); err != nil {
		l.logger.Warn().Err(err).Str(logKeyURL, op.URL).Msg("ledger cache write failed")
	}
}
