package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "observer_checks_total",
		Help: "The total number of website checks",
	}, []string{"monitor_type", "status"})

	ChangesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "observer_changes_detected_total",
		Help: "The total number of scrapes that reported a content change",
	})

	ClassifierRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "observer_classifier_requests_total",
		Help: "The total number of classifier calls by stage and outcome",
	}, []string{"stage", "outcome"})

	ClassifierDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "observer_classifier_request_duration_seconds",
		Help:    "Duration of classifier requests",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"stage"})

	AnalysisOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "observer_analysis_outcomes_total",
		Help: "The total number of analyzed change events by outcome",
	}, []string{"outcome"})

	DeepCandidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "observer_deep_candidates_total",
		Help: "Deep analysis candidates by result",
	}, []string{"result"})

	LedgerLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "observer_ledger_lookups_total",
		Help: "Dedup ledger lookups by result",
	}, []string{"result"})

	LedgerPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "observer_ledger_pruned_total",
		Help: "The total number of expired ledger records removed",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "observer_notifications_total",
		Help: "The total number of notification attempts by channel and status",
	}, []string{"channel", "status"})

	CrawlSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "observer_crawl_sessions_total",
		Help: "Crawl sessions by final status",
	}, []string{"status"})

	ContentFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "observer_content_fetch_duration_seconds",
		Help:    "Duration of deep analysis content fetches",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"source"})
)

// Label values shared by the pipeline packages.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusSkipped  = "skipped"
	StatusFiltered = "filtered"

	StagePrimary = "primary"
	StageGoNoGo  = "gonogo"

	OutcomeOK          = "ok"
	OutcomeParseError  = "parse_error"
	OutcomeSchemaError = "schema_error"
	OutcomeError       = "error"

	ChannelWebhook = "webhook"
	ChannelEmail   = "email"

	ResultFresh    = "fresh"
	ResultStale    = "stale"
	ResultMiss     = "miss"
	ResultCacheHit = "cache_hit"

	ResultGo        = "go"
	ResultNoGo      = "no_go"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"

	OutcomeMeaningful    = "meaningful"
	OutcomeNotMeaningful = "not_meaningful"
	OutcomeSuppressed    = "suppressed"
	OutcomeAbandoned     = "abandoned"
)
