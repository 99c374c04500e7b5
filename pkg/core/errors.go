package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error is the canonical error shape shared by provider adapters and the
// HTTP layer.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	RetryAfter *int      `json:"retry_after,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Type)
	if e.Provider != "" {
		prefix = e.Provider + ": " + prefix
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", prefix, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrProvider       ErrorType = "provider_error"
	ErrTimeout        ErrorType = "timeout_error"
	ErrMalformed      ErrorType = "malformed_response_error"
	ErrUnconfigured   ErrorType = "unconfigured_error"

	// Non-provider failures surfaced as guidance or recorded, never retried.
	ErrPartialData   ErrorType = "partial_data"
	ErrRecipientSend ErrorType = "recipient_send_failure"
	ErrUnknownCaller ErrorType = "unknown_caller"
	ErrNoMicrophone  ErrorType = "no_microphone"
	ErrNoSpeech      ErrorType = "no_speech"
	ErrTypeInstead   ErrorType = "type_instead"
)

// Class is the coarse bucket used by fallback chains and user-facing surfaces.
type Class string

const (
	// ClassProviderUnavailable errors move a chain on to its next provider.
	ClassProviderUnavailable Class = "provider_unavailable"
	// ClassTimeout errors end the chain; the caller answers with a localized message.
	ClassTimeout Class = "timeout"
	// ClassCanceled means the caller went away; nothing should be answered.
	ClassCanceled Class = "canceled"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(provider, message string) *Error {
	return &Error{Type: ErrAuthentication, Provider: provider, Message: message}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(provider, message string) *Error {
	return &Error{Type: ErrNotFound, Provider: provider, Message: message}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(provider, message string, retryAfter int) *Error {
	return &Error{Type: ErrRateLimit, Provider: provider, Message: message, RetryAfter: &retryAfter}
}

// NewMalformedError reports a provider response that could not be used.
func NewMalformedError(provider, message string) *Error {
	return &Error{Type: ErrMalformed, Provider: provider, Message: message}
}

// NewUnconfiguredError reports a provider with missing credentials.
func NewUnconfiguredError(provider string) *Error {
	return &Error{Type: ErrUnconfigured, Provider: provider, Message: "provider is not configured"}
}

// NewTimeoutError wraps a deadline expiry.
func NewTimeoutError(message string, cause error) *Error {
	return &Error{Type: ErrTimeout, Message: message, cause: cause}
}

// NewProviderError wraps a transport-level failure from a provider.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{
		Type:     ErrProvider,
		Provider: provider,
		Message:  underlying.Error(),
		cause:    underlying,
	}
}

// FromHTTPStatus maps a provider HTTP status to an error type.
func FromHTTPStatus(provider string, status int, message string) *Error {
	var t ErrorType
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		t = ErrInvalidRequest
	case status == http.StatusUnauthorized:
		t = ErrAuthentication
	case status == http.StatusForbidden || status == http.StatusPaymentRequired:
		t = ErrPermission
	case status == http.StatusNotFound || status == http.StatusGone:
		t = ErrNotFound
	case status == http.StatusTooManyRequests:
		t = ErrRateLimit
	case status == http.StatusServiceUnavailable || status == 529:
		t = ErrOverloaded
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		t = ErrTimeout
	case status >= 500:
		t = ErrAPI
	default:
		t = ErrProvider
	}
	return &Error{
		Type:     t,
		Provider: provider,
		Message:  message,
		Code:     fmt.Sprintf("http_%d", status),
	}
}

// Classify buckets any error. Context expiry wins over whatever the provider
// reported, since a chain cannot continue past its own deadline.
func Classify(ctx context.Context, err error) Class {
	if ctx != nil {
		switch ctx.Err() {
		case context.DeadlineExceeded:
			return ClassTimeout
		case context.Canceled:
			return ClassCanceled
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	var coreErr *Error
	if errors.As(err, &coreErr) && coreErr.Type == ErrTimeout {
		return ClassTimeout
	}
	return ClassProviderUnavailable
}

// IsFallthrough reports whether a chain should move on to its next step
// after err. Provider-side timeouts fall through; only an expired or
// canceled chain context stops the walk.
func IsFallthrough(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return ctx == nil || ctx.Err() == nil
}

// IsRetryable returns true if the same provider could succeed on retry.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI, ErrTimeout:
		return true
	default:
		return false
	}
}

// TypeOf returns the error type of err, or ErrAPI for foreign errors.
func TypeOf(err error) ErrorType {
	var coreErr *Error
	if errors.As(err, &coreErr) && coreErr != nil {
		return coreErr.Type
	}
	return ErrAPI
}
