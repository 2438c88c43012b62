// Package deepanalysis follows the links the primary classifier picked, scores each
// linked page against the user's Go/No-Go rules and folds the verdicts back into
// the event decision.
package deepanalysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lueurxax/change-observer/internal/core/domain"
	"github.com/lueurxax/change-observer/internal/core/links"
	"github.com/lueurxax/change-observer/internal/core/links/linkextract"
	"github.com/lueurxax/change-observer/internal/core/llm"
	"github.com/lueurxax/change-observer/internal/platform/observability"
	"github.com/lueurxax/change-observer/internal/platform/worker"
)

// errNotEvaluated marks a target the pass never reached, e.g. after cancellation.
var errNotEvaluated = errors.New("not evaluated")

// Log keys.
const (
	logKeyURL       = "url"
	logKeyUserID    = "user_id"
	logKeyWebsiteID = "website_id"
)

// Classifier scores one page against the user's rules.
type Classifier interface {
	EvaluateGoNoGo(ctx context.Context, req llm.GoNoGoRequest) (llm.GoNoGoVerdict, error)
}

// Ledger is the dedup ledger as seen by the evaluator.
type Ledger interface {
	Partition(ctx context.Context, urls []string, userID string) (pending, skipped []string)
	Store(ctx context.Context, url, userID, websiteID string, status domain.OpportunityStatus, score float64) error
}

// Request describes one deep analysis pass.
type Request struct {
	Credentials llm.Credentials
	Rules       string
	UserID      string
	WebsiteID   string
	// PageURL resolves root-relative links.
	PageURL string
	URLs    []string
}

// Outcome is the result of one pass.
type Outcome struct {
	// Targets are the absolute http URLs considered, in classifier order.
	Targets []string
	// Skipped are the targets analyzed within the ledger window.
	Skipped []string
	// Verdicts has one entry per evaluated target, failures included.
	Verdicts []domain.DeepVerdict
}

// AllSkipped reports whether every target was a recent duplicate.
func (o Outcome) AllSkipped() bool {
	return len(o.Targets) > 0 && len(o.Skipped) == len(o.Targets)
}

// Successful returns the verdicts that parsed, in order.
func (o Outcome) Successful() []domain.DeepVerdict {
	var ok []domain.DeepVerdict

	for _, v := range o.Verdicts {
		if !v.Failed() {
			ok = append(ok, v)
		}
	}

	return ok
}

// Evaluator runs the Go/No-Go round for the candidate links of one event.
type Evaluator struct {
	classifier Classifier
	fetcher    links.ContentFetcher
	ledger     Ledger
	logger     *zerolog.Logger
}

func New(classifier Classifier, fetcher links.ContentFetcher, ledger Ledger, logger *zerolog.Logger) *Evaluator {
	return &Evaluator{
		classifier: classifier,
		fetcher:    fetcher,
		ledger:     ledger,
		logger:     logger,
	}
}

// Targets normalizes classifier URLs: root-relative links are resolved against
// pageURL, anything that is not http(s) is dropped, duplicates are removed.
func Targets(urls []string, pageURL string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))

	for _, raw := range urls {
		abs := linkextract.Absolutize(strings.TrimSpace(raw), pageURL)
		if abs == "" {
			continue
		}

		if _, ok := seen[abs]; ok {
			continue
		}

		seen[abs] = struct{}{}
		out = append(out, abs)
	}

	return out
}

// Evaluate skips recently analyzed links, evaluates the rest concurrently and
// records every parsed verdict in the ledger before returning.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) Outcome {
	out := Outcome{Targets: Targets(req.URLs, req.PageURL)}
	if len(out.Targets) == 0 {
		return out
	}

	pending, skipped := e.ledger.Partition(ctx, out.Targets, req.UserID)
	out.Skipped = skipped

	observability.DeepCandidates.WithLabelValues(observability.ResultDuplicate).Add(float64(len(skipped)))

	if len(pending) == 0 {
		e.logger.Info().
			Str(logKeyWebsiteID, req.WebsiteID).
			Int("skipped", len(skipped)).
			Msg("all identified links were analyzed recently, skipping deep analysis")

		return out
	}

	e.logger.Info().
		Str(logKeyWebsiteID, req.WebsiteID).
		Int("pending", len(pending)).
		Int("identified", len(out.Targets)).
		Msg("performing deep analysis")

	verdicts := make([]domain.DeepVerdict, len(pending))
	indexes := make([]int, len(pending))

	for i, url := range pending {
		indexes[i] = i
		verdicts[i] = domain.DeepVerdict{URL: url, Err: errNotEvaluated}
	}

	// One slot per pending link: every evaluation runs at once and all are awaited.
	worker.ForEach(ctx, len(pending), indexes, func(ctx context.Context, i int) error {
		verdicts[i] = e.evaluateOne(ctx, req, pending[i])
		return nil
	}, nil)

	out.Verdicts = verdicts

	return out
}

func (e *Evaluator) evaluateOne(ctx context.Context, req Request, url string) domain.DeepVerdict {
	content, err := e.fetcher.FetchContent(ctx, url)
	if err != nil {
		e.logger.Warn().Err(err).Str(logKeyURL, url).Msg("deep analysis fetch failed")
		observability.DeepCandidates.WithLabelValues(observability.ResultFailed).Inc()

		return domain.DeepVerdict{URL: url, Err: fmt.Errorf("fetch %s: %w", url, err)}
	}

	verdict, err := e.classifier.EvaluateGoNoGo(ctx, llm.GoNoGoRequest{
		Credentials: req.Credentials,
		Rules:       req.Rules,
		URL:         url,
		Content:     content,
	})
	if err != nil {
		e.logger.Warn().Err(err).Str(logKeyURL, url).Msg("deep analysis classification failed")
		observability.DeepCandidates.WithLabelValues(observability.ResultFailed).Inc()

		return domain.DeepVerdict{URL: url, Err: fmt.Errorf("classify %s: %w", url, err)}
	}

	result := observability.ResultNoGo
	if verdict.IsGo {
		result = observability.ResultGo
	}

	observability.DeepCandidates.WithLabelValues(result).Inc()

	if err := e.ledger.Store(ctx, url, req.UserID, req.WebsiteID, domain.StatusFromGo(verdict.IsGo), verdict.Score); err != nil {
		e.logger.Error().Err(err).Str(logKeyURL, url).Str(logKeyUserID, req.UserID).Msg("failed to record analyzed opportunity")
	}

	return domain.DeepVerdict{
		URL:       url,
		Score:     verdict.Score,
		IsGo:      verdict.IsGo,
		Reasoning: verdict.Reasoning,
	}
}
