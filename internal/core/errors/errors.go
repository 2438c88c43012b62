// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Unexported errors (err*): Use for internal package errors
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Circuit breaker errors.
var (
	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// Lookup errors.
var (
	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")

	// ErrWebsiteNotFound indicates a monitored website could not be found.
	ErrWebsiteNotFound = errors.New("website not found")

	// ErrScrapeResultNotFound indicates a scrape result could not be found.
	ErrScrapeResultNotFound = errors.New("scrape result not found")
)

// Analysis errors.
var (
	// ErrAIDisabled indicates AI analysis is turned off for the user.
	ErrAIDisabled = errors.New("ai analysis disabled")

	// ErrAIKeyMissing indicates AI analysis is enabled but no API key is configured.
	ErrAIKeyMissing = errors.New("ai api key missing")

	// ErrClassifierParse indicates the classifier response was not valid JSON.
	ErrClassifierParse = errors.New("classifier response is not valid json")

	// ErrClassifierSchema indicates the classifier response is missing required fields.
	ErrClassifierSchema = errors.New("classifier response violates schema")

	// ErrEmptyResponse indicates an empty response was received.
	ErrEmptyResponse = errors.New("empty response")
)

// Transport errors.
var (
	// ErrUnexpectedStatus indicates a remote endpoint answered with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected http status")

	// ErrScrapeFailed indicates the scraping provider reported an unsuccessful scrape.
	ErrScrapeFailed = errors.New("scrape failed")

	// ErrProxyNotConfigured indicates a private destination was requested without a relay.
	ErrProxyNotConfigured = errors.New("webhook proxy not configured")

	// ErrClientDisabled indicates a client or feature is disabled.
	ErrClientDisabled = errors.New("client disabled")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")
)

// Authorization errors.
var (
	// ErrUnauthorized indicates the caller has no identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAdminRequired indicates the caller is not on the admin allow-list.
	ErrAdminRequired = errors.New("admin access required")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join is a convenience wrapper around errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
