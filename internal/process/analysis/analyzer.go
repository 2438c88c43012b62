// Package analysis runs the AI stages for one change event: primary
// classification, optional deep analysis, the write-once final analysis and
// the hand-off to notifications.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
	"github.com/lueurxax/change-observer/internal/core/links/linkextract"
	"github.com/lueurxax/change-observer/internal/core/llm"
	"github.com/lueurxax/change-observer/internal/platform/observability"
	"github.com/lueurxax/change-observer/internal/process/deepanalysis"
	"github.com/lueurxax/change-observer/internal/process/notify"
)

// Log keys.
const (
	logKeyWebsiteID    = "website_id"
	logKeyScrapeResult = "scrape_result_id"
	logKeyScore        = "score"
)

// Store is the record store as seen by the analyzer.
type Store interface {
	GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error)
	RecordAIAnalysis(ctx context.Context, scrapeResultID string, analysis domain.FinalAnalysis) error
}

// Classifier runs the primary classification round.
type Classifier interface {
	Classify(ctx context.Context, req llm.ClassifyRequest) (llm.ClassificationResult, error)
	ResolveModel(creds llm.Credentials) string
}

// DeepEvaluator runs the Go/No-Go round.
type DeepEvaluator interface {
	Evaluate(ctx context.Context, req deepanalysis.Request) deepanalysis.Outcome
}

// Notifier dispatches the change notification.
type Notifier interface {
	NotifyChange(ctx context.Context, site domain.Website, settings *domain.UserSettings, change domain.ChangeNotification, directive *domain.NotificationDirective) notify.Report
}

// Event is one stored scrape with a change to analyze.
type Event struct {
	Website        domain.Website
	ScrapeResultID string
	Change         domain.ChangeNotification
	PageLinks      []string
	// Settings may be preloaded by the caller; otherwise they are read from the store.
	Settings *domain.UserSettings
}

// Result describes what the analyzer decided and sent.
type Result struct {
	Analysis  domain.FinalAnalysis
	Directive domain.NotificationDirective
	Deep      deepanalysis.Outcome
	DeepRan   bool
	Report    notify.Report
}

// Analyzer wires the classification stages together.
type Analyzer struct {
	store      Store
	classifier Classifier
	deep       DeepEvaluator
	notifier   Notifier
	now        func() time.Time
	logger     *zerolog.Logger
}

func New(store Store, classifier Classifier, deep DeepEvaluator, notifier Notifier, logger *zerolog.Logger) *Analyzer {
	return &Analyzer{
		store:      store,
		classifier: classifier,
		deep:       deep,
		notifier:   notifier,
		now:        time.Now,
		logger:     logger,
	}
}

// AnalyzeChange classifies the event, stores the final analysis once and
// notifies. Classifier failures abandon the event without any write.
func (a *Analyzer) AnalyzeChange(ctx context.Context, ev Event) (Result, error) {
	settings, err := a.settings(ctx, ev)
	if err != nil {
		return Result{}, err
	}

	if ev.Change.Diff == nil || strings.TrimSpace(ev.Change.Diff.Text) == "" {
		return Result{}, fmt.Errorf("analyze change: empty diff: %w", coreerrors.ErrInvalidInput)
	}

	creds := llm.Credentials{
		APIKey:  settings.AIAPIKey,
		BaseURL: settings.AIBaseURL,
		Model:   settings.AIModel,
	}

	candidates := linkextract.Collect(*ev.Change.Diff, ev.PageLinks)

	a.logger.Debug().
		Str(logKeyWebsiteID, ev.Website.ID).
		Int("candidates", candidates.Len()).
		Int("from_diff_text", candidates.Count(linkextract.SourceDiffText)).
		Int("from_diff_json", candidates.Count(linkextract.SourceDiffJSON)).
		Int("from_page", candidates.Count(linkextract.SourcePageLinks)).
		Msg("collected candidate links")

	res, err := a.classifier.Classify(ctx, llm.ClassifyRequest{
		Credentials:  creds,
		SystemPrompt: settings.AISystemPrompt,
		WebsiteName:  ev.Website.Name,
		WebsiteURL:   ev.Website.URL,
		DiffText:     ev.Change.Diff.Text,
		Candidates:   candidates,
	})
	if err != nil {
		observability.AnalysisOutcomes.WithLabelValues(observability.OutcomeAbandoned).Inc()
		return Result{}, fmt.Errorf("classify change: %w", err)
	}

	if !res.OK() {
		observability.AnalysisOutcomes.WithLabelValues(observability.OutcomeAbandoned).Inc()
		a.logger.Error().
			Err(res.Err).
			Str(logKeyWebsiteID, ev.Website.ID).
			Str("kind", res.Kind.String()).
			Str("raw", res.Raw).
			Msg("classifier response rejected, event abandoned")

		return Result{}, fmt.Errorf("classify change: %s: %w", res.Kind, res.Err)
	}

	verdict := res.Verdict
	decision := deepanalysis.Decision{
		Score:        verdict.Score,
		IsMeaningful: verdict.MeetsThreshold(settings.Threshold()),
		Reasoning:    verdict.Reasoning,
	}

	result := Result{}

	if a.deepAnalysisApplies(ev.Website, settings, verdict) {
		result.DeepRan = true
		result.Deep = a.deep.Evaluate(ctx, deepanalysis.Request{
			Credentials: creds,
			Rules:       settings.GoNoGoRules,
			UserID:      ev.Website.UserID,
			WebsiteID:   ev.Website.ID,
			PageURL:     ev.Website.URL,
			URLs:        verdict.RelevantURLs,
		})
		decision = deepanalysis.Aggregate(decision, result.Deep)
	}

	result.Analysis = domain.FinalAnalysis{
		MeaningfulChangeScore: decision.Score,
		IsMeaningfulChange:    decision.IsMeaningful,
		Reasoning:             decision.Reasoning,
		AnalyzedAt:            a.now(),
		Model:                 a.classifier.ResolveModel(creds),
	}

	if err := a.store.RecordAIAnalysis(ctx, ev.ScrapeResultID, result.Analysis); err != nil {
		return Result{}, fmt.Errorf("record ai analysis: %w", err)
	}

	result.Directive = decision.Directive()
	a.recordOutcome(ev, result)

	change := ev.Change
	change.AIAnalysis = &result.Analysis

	result.Report = a.notifier.NotifyChange(ctx, ev.Website, settings, change, &result.Directive)

	return result, nil
}

func (a *Analyzer) settings(ctx context.Context, ev Event) (*domain.UserSettings, error) {
	settings := ev.Settings
	if settings == nil {
		loaded, err := a.store.GetUserSettings(ctx, ev.Website.UserID)
		if err != nil {
			return nil, fmt.Errorf("load user settings: %w", err)
		}

		settings = loaded
	}

	if settings == nil || !settings.AIAnalysisEnabled {
		return nil, coreerrors.ErrAIDisabled
	}

	if settings.AIAPIKey == "" {
		return nil, coreerrors.ErrAIKeyMissing
	}

	return settings, nil
}

func (a *Analyzer) deepAnalysisApplies(site domain.Website, settings *domain.UserSettings, verdict domain.ClassificationVerdict) bool {
	if a.deep == nil || !site.DeepAnalysisEnabled || strings.TrimSpace(settings.GoNoGoRules) == "" {
		return false
	}

	return len(deepanalysis.Targets(verdict.RelevantURLs, site.URL)) > 0
}

func (a *Analyzer) recordOutcome(ev Event, result Result) {
	outcome := observability.OutcomeNotMeaningful

	switch {
	case result.Directive.Suppress:
		outcome = observability.OutcomeSuppressed
	case result.Directive.IsMeaningful:
		outcome = observability.OutcomeMeaningful
	}

	observability.AnalysisOutcomes.WithLabelValues(outcome).Inc()

	a.logger.Info().
		Str(logKeyWebsiteID, ev.Website.ID).
		Str(logKeyScrapeResult, ev.ScrapeResultID).
		Float64(logKeyScore, result.Analysis.MeaningfulChangeScore).
		Bool("meaningful", result.Analysis.IsMeaningfulChange).
		Bool("deep", result.DeepRan).
		Str("outcome", outcome).
		Msg("change analyzed")
}
