// Package errors defines the unified error taxonomy for fan-out operations.
// Registry misses, factory failures, and provider errors are all mapped to
// these types so the dispatcher can fold any of them into a failed outcome.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// DispatchError represents a standardized failure from any stage of a
// fan-out: model resolution, client construction, or the provider call.
// It contains all necessary information for outcome rows, logging, and
// HTTP responses.
type DispatchError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Retryable  bool   `json:"-"`
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("[%s] %s (provider=%s, model=%s, code=%d)",
		e.Type, e.Message, e.Provider, e.Model, e.StatusCode)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *DispatchError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Error types as constants for consistency.
const (
	TypeModelNotFound      = "model_not_found"
	TypeModelInactive      = "model_inactive"
	TypeMissingCredential  = "missing_credential"
	TypeClientConstruction = "client_construction_error"
	TypeTimeout            = "timeout_error"
	TypeConnection         = "connection_error"
	TypeRateLimit          = "rate_limit_error"
	TypePaymentRequired    = "payment_required_error"
	TypeAuthentication     = "authentication_error"
	TypeEndpointNotFound   = "endpoint_not_found_error"
	TypeParse              = "parse_error"
	TypeCancelled          = "cancelled"
)

// NewModelNotFoundError reports a model id unknown to the registry.
func NewModelNotFoundError(modelID int64) *DispatchError {
	return &DispatchError{
		StatusCode: http.StatusNotFound,
		Message:    fmt.Sprintf("model %d not found", modelID),
		Type:       TypeModelNotFound,
		Retryable:  false,
	}
}

// NewModelInactiveError reports a model that exists but is disabled.
func NewModelInactiveError(model string) *DispatchError {
	return &DispatchError{
		StatusCode: http.StatusConflict,
		Message:    fmt.Sprintf("model %s is inactive", model),
		Type:       TypeModelInactive,
		Model:      model,
		Retryable:  false,
	}
}

// NewMissingCredentialError reports that no secret is configured for the
// provider a model's credential key resolves to.
func NewMissingCredentialError(provider, model string) *DispatchError {
	return &DispatchError{
		StatusCode: http.StatusUnauthorized,
		Message:    fmt.Sprintf("no API key configured for %s: set the credential in the environment or secret store", provider),
		Type:       TypeMissingCredential,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewClientConstructionError reports a factory failure other than a
// missing credential.
func NewClientConstructionError(provider, model, message string) *DispatchError {
	return &DispatchError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeClientConstruction,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewTimeoutError creates a timeout error whose message carries the
// configured timeout value.
func NewTimeoutError(provider, model string, timeout time.Duration) *DispatchError {
	return &DispatchError{
		StatusCode: http.StatusRequestTimeout,
		Message:    fmt.Sprintf("request timed out after %s", timeout),
		Type:       TypeTimeout,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewConnectionError creates a transport-level error (DNS, refused
// connection, broken pipe).
func NewConnectionError(provider, model, message string) *DispatchError {
	return &DispatchError{
		StatusCode: http.StatusBadGateway,
		Message:    message,
		Type:       TypeConnection,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewRateLimitError creates a rate limit error (429).
func NewRateLimitError(provider, model, message string) *DispatchError {
	return &DispatchError{
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeRateLimit,
		Provider:   provider,
		Model:      model,
		Retryable:  true,
	}
}

// NewPaymentRequiredError creates a payment required error (402).
func NewPaymentRequiredError(provider, model, message string) *DispatchError {
	return &DispatchError{
		StatusCode: http.StatusPaymentRequired,
		Message:    message,
		Type:       TypePaymentRequired,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewAuthenticationError creates an authentication error (401).
func NewAuthenticationError(provider, model, message string) *DispatchError {
	return &DispatchError{
		StatusCode: http.StatusUnauthorized,
		Message:    message,
		Type:       TypeAuthentication,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewEndpointNotFoundError creates a not found error for an HTTP 404 from
// the provider endpoint.
func NewEndpointNotFoundError(provider, model, message string) *DispatchError {
	return &DispatchError{
		StatusCode: http.StatusNotFound,
		Message:    message,
		Type:       TypeEndpointNotFound,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewParseError reports a 2xx response whose body lacks the expected
// completion shape.
func NewParseError(provider, model, message string) *DispatchError {
	return &DispatchError{
		StatusCode: http.StatusBadGateway,
		Message:    message,
		Type:       TypeParse,
		Provider:   provider,
		Model:      model,
		Retryable:  false,
	}
}

// NewCancelledError reports a request skipped or aborted by cooperative
// cancellation. The message is the bare word so outcome rows read cleanly.
func NewCancelledError(provider, model string) *DispatchError {
	return &DispatchError{
		Message:   "cancelled",
		Type:      TypeCancelled,
		Provider:  provider,
		Model:     model,
		Retryable: false,
	}
}

// FromStatusCode maps a non-2xx provider response to the matching error
// type, prefixing the upstream detail with remediation guidance where the
// status has a known fix.
func FromStatusCode(provider, model string, status int, detail string) *DispatchError {
	switch status {
	case http.StatusUnauthorized:
		return NewAuthenticationError(provider, model,
			withDetail(fmt.Sprintf("invalid API key for %s: check the configured credential", provider), detail))
	case http.StatusPaymentRequired:
		return NewPaymentRequiredError(provider, model,
			withDetail(fmt.Sprintf("insufficient credits for %s: top up the account or reduce max_tokens", provider), detail))
	case http.StatusNotFound:
		return NewEndpointNotFoundError(provider, model,
			withDetail(fmt.Sprintf("endpoint or model not found for %s: verify the endpoint URL and model name", provider), detail))
	case http.StatusTooManyRequests:
		return NewRateLimitError(provider, model,
			withDetail(fmt.Sprintf("rate limited by %s: retries exhausted, wait before resubmitting", provider), detail))
	default:
		return &DispatchError{
			StatusCode: status,
			Message:    withDetail(fmt.Sprintf("unexpected HTTP %d from %s", status, provider), detail),
			Type:       TypeConnection,
			Provider:   provider,
			Model:      model,
			Retryable:  status >= 500,
		}
	}
}

func withDetail(message, detail string) string {
	if detail == "" {
		return message
	}
	return message + ": " + detail
}

// From extracts a DispatchError from an error chain.
func From(err error) (*DispatchError, bool) {
	var de *DispatchError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Is reports whether err carries a DispatchError of the given type.
func Is(err error, errType string) bool {
	de, ok := From(err)
	return ok && de.Type == errType
}
