package ai

import (
	"errors"
	"fmt"
	"time"
)

// The typed errors below classify a non-2xx answer from a completion
// service. Each wraps the decoded *APIError, so errors.As finds either the
// class or the raw response details.

// AuthError is a rejected or missing credential (401/403).
type AuthError struct{ *APIError }

func (e *AuthError) Error() string {
	return "completion service rejected the credentials: " + e.APIError.Error()
}

func (e *AuthError) Unwrap() error { return e.APIError }

// RateLimitError is a 429. RetryAfter is zero when the service sent no hint.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("completion service rate limit (retry after %s): %s", e.RetryAfter, e.APIError.Error())
	}
	return "completion service rate limit: " + e.APIError.Error()
}

func (e *RateLimitError) Unwrap() error { return e.APIError }

// ModelNotFoundError means the configured model does not exist for the
// provider.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string { return "model not available: " + e.APIError.Error() }
func (e *ModelNotFoundError) Unwrap() error { return e.APIError }

// BadRequestError is a request the service refused as malformed, often an
// oversized prompt.
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return "request refused: " + e.APIError.Error() }
func (e *BadRequestError) Unwrap() error { return e.APIError }

// QuotaExceededError is an exhausted quota or billing problem.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string { return "quota exhausted: " + e.APIError.Error() }
func (e *QuotaExceededError) Unwrap() error { return e.APIError }

// ServerError is a 5xx.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return "completion service failure: " + e.APIError.Error() }
func (e *ServerError) Unwrap() error { return e.APIError }

// UnreachableError is a transport failure before any response arrived.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e.Host == "" {
		return fmt.Sprintf("completion service unreachable: %v", e.Err)
	}
	return fmt.Sprintf("completion service unreachable at %s: %v", e.Host, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// ConfigurationError reports settings that prevent building a runtime, such
// as a missing API key or an unknown provider.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Key, e.Reason)
}

// StatusCode returns the HTTP status behind err, or 0 when err did not come
// from a service response.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
