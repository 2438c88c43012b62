package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
	"github.com/lueurxax/change-observer/internal/core/links/linkextract"
	"github.com/lueurxax/change-observer/internal/platform/observability"
)

// Credentials select the provider account and model for one user.
type Credentials struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ClassifyRequest is the input of the primary classification round.
type ClassifyRequest struct {
	Credentials
	SystemPrompt string
	WebsiteName  string
	WebsiteURL   string
	DiffText     string
	Candidates   linkextract.Candidates
}

// GoNoGoRequest is the input of the deep analysis round for one linked page.
type GoNoGoRequest struct {
	Credentials
	Rules   string
	URL     string
	Content string
}

// Options configure the classifier service.
type Options struct {
	DefaultBaseURL  string
	DefaultModel    string
	RateLimitRPS    float64
	RequestTimeout  time.Duration
	ContentMaxChars int
	HTTPClient      *http.Client
}

// Service talks to OpenAI-compatible chat completion endpoints on behalf of users.
// One client and circuit breaker is kept per (base URL, API key) pair.
type Service struct {
	opts        Options
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter

	mu      sync.Mutex
	clients map[string]*providerClient
}

type providerClient struct {
	client *openai.Client
	logger *zerolog.Logger

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
}

func New(opts Options, logger *zerolog.Logger) *Service {
	if opts.DefaultBaseURL == "" {
		opts.DefaultBaseURL = DefaultBaseURL
	}

	if opts.DefaultModel == "" {
		opts.DefaultModel = DefaultModel
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	if opts.ContentMaxChars <= 0 {
		opts.ContentMaxChars = DefaultContentMaxChars
	}

	limit := rate.Inf
	if opts.RateLimitRPS > 0 {
		limit = rate.Limit(opts.RateLimitRPS)
	}

	return &Service{
		opts:        opts,
		logger:      logger,
		rateLimiter: rate.NewLimiter(limit, rateLimiterBurst),
		clients:     make(map[string]*providerClient),
	}
}

// ResolveModel returns the model that will be used for the credentials.
func (s *Service) ResolveModel(creds Credentials) string {
	if creds.Model != "" {
		return creds.Model
	}

	return s.opts.DefaultModel
}

func (s *Service) resolveBaseURL(creds Credentials) string {
	base := creds.BaseURL
	if base == "" {
		base = s.opts.DefaultBaseURL
	}

	return strings.TrimRight(base, "/")
}

func (s *Service) clientFor(creds Credentials) *providerClient {
	base := s.resolveBaseURL(creds)
	key := base + "\x00" + creds.APIKey

	s.mu.Lock()
	defer s.mu.Unlock()

	if pc, ok := s.clients[key]; ok {
		return pc
	}

	cfg := openai.DefaultConfig(creds.APIKey)
	cfg.BaseURL = base

	if s.opts.HTTPClient != nil {
		cfg.HTTPClient = s.opts.HTTPClient
	}

	pcLogger := s.logger.With().Str(logKeyBaseURL, base).Logger()
	pc := &providerClient{
		client: openai.NewClientWithConfig(cfg),
		logger: &pcLogger,
	}
	s.clients[key] = pc

	return pc
}

// Classify runs the primary classification round. Transport failures are returned as
// errors; contract violations are reported through the result kind.
func (s *Service) Classify(ctx context.Context, req ClassifyRequest) (ClassificationResult, error) {
	if req.APIKey == "" {
		return ClassificationResult{}, coreerrors.ErrAIKeyMissing
	}

	content, err := s.complete(ctx, req.Credentials, observability.StagePrimary, openai.ChatCompletionRequest{
		Model:       s.ResolveModel(req.Credentials),
		Temperature: classifierTemperature,
		MaxTokens:   classifierMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPromptOrDefault(req.SystemPrompt)},
			{Role: openai.ChatMessageRoleUser, Content: buildClassifierUserMessage(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		observability.ClassifierRequests.WithLabelValues(observability.StagePrimary, observability.OutcomeError).Inc()

		return ClassificationResult{}, err
	}

	s.logger.Debug().Str(logKeyResponse, content).Msg("Primary classifier response")

	result := ParseClassification(content, req.Candidates)
	observability.ClassifierRequests.WithLabelValues(observability.StagePrimary, result.Kind.String()).Inc()

	return result, nil
}

// EvaluateGoNoGo scores one linked page against the user's rules.
func (s *Service) EvaluateGoNoGo(ctx context.Context, req GoNoGoRequest) (GoNoGoVerdict, error) {
	if req.APIKey == "" {
		return GoNoGoVerdict{}, coreerrors.ErrAIKeyMissing
	}

	content, err := s.complete(ctx, req.Credentials, observability.StageGoNoGo, openai.ChatCompletionRequest{
		Model:       s.ResolveModel(req.Credentials),
		Temperature: classifierTemperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: goNoGoSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildGoNoGoUserMessage(req, s.opts.ContentMaxChars)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		observability.ClassifierRequests.WithLabelValues(observability.StageGoNoGo, observability.OutcomeError).Inc()

		return GoNoGoVerdict{}, err
	}

	s.logger.Debug().Str(logKeyURL, req.URL).Str(logKeyResponse, content).Msg("Go/No-Go response")

	verdict, err := ParseGoNoGo(content)
	if err != nil {
		observability.ClassifierRequests.WithLabelValues(observability.StageGoNoGo, observability.OutcomeParseError).Inc()

		return GoNoGoVerdict{}, err
	}

	observability.ClassifierRequests.WithLabelValues(observability.StageGoNoGo, observability.OutcomeOK).Inc()

	return verdict, nil
}

func (s *Service) complete(ctx context.Context, creds Credentials, stage string, req openai.ChatCompletionRequest) (string, error) {
	pc := s.clientFor(creds)

	if err := pc.checkCircuit(); err != nil {
		return "", err
	}

	if err := s.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf(errRateLimiter, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := pc.client.CreateChatCompletion(ctx, req)

	observability.ClassifierDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())

	if err != nil {
		pc.recordFailure()

		return "", fmt.Errorf(errOpenAIChatCompletion, err)
	}

	pc.recordSuccess()

	if len(resp.Choices) == 0 {
		return "", coreerrors.ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *providerClient) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.circuitOpenUntil) {
		return fmt.Errorf("%w until %v", coreerrors.ErrCircuitBreakerOpen, c.circuitOpenUntil)
	}

	return nil
}

func (c *providerClient) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures = 0
}

func (c *providerClient) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= circuitBreakerThreshold {
		c.circuitOpenUntil = time.Now().Add(circuitBreakerTimeout)
		c.logger.Warn().
			Int("consecutive_failures", c.consecutiveFailures).
			Time("open_until", c.circuitOpenUntil).
			Msg("Circuit breaker opened")
	}
}
