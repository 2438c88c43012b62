package llm

import "time"

// Error message templates
const (
	errRateLimiter          = "rate limiter error: %w"
	errOpenAIChatCompletion = "openai chat completion error: %w"
	errParseResponse        = "failed to parse response: %w"
)

// Log key strings
const (
	logKeyModel    = "model"
	logKeyBaseURL  = "base_url"
	logKeyResponse = "response"
	logKeyKind     = "kind"
	logKeyURL      = "url"
)

// Request defaults
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"

	classifierTemperature = 0.1
	classifierMaxTokens   = 4000

	// DefaultContentMaxChars bounds the page content sent to the Go/No-Go round.
	DefaultContentMaxChars = 15000

	defaultRequestTimeout = 120 * time.Second
	rateLimiterBurst      = 5
)

// Circuit breaker
const (
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = 1 * time.Minute
)
