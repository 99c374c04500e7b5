package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "invalid model format",
	}

	expected := "invalid_request_error: invalid model format"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithProviderAndCode(t *testing.T) {
	err := &Error{
		Type:     ErrRateLimit,
		Provider: "groq",
		Message:  "too many requests",
		Code:     "rate_limit_exceeded",
	}

	expected := "groq: rate_limit_error: too many requests (code: rate_limit_exceeded)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewRateLimitError(t *testing.T) {
	err := NewRateLimitError("openai", "rate limit exceeded", 60)
	if err.Type != ErrRateLimit {
		t.Errorf("Type = %v, want %v", err.Type, ErrRateLimit)
	}
	if err.RetryAfter == nil || *err.RetryAfter != 60 {
		t.Errorf("RetryAfter = %v, want 60", err.RetryAfter)
	}
}

func TestNewProviderError_Unwraps(t *testing.T) {
	underlying := errors.New("connection reset")
	err := NewProviderError("elevenlabs", underlying)

	if err.Type != ErrProvider {
		t.Errorf("Type = %v, want %v", err.Type, ErrProvider)
	}
	if !errors.Is(err, underlying) {
		t.Error("expected errors.Is to reach the underlying error")
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{http.StatusBadRequest, ErrInvalidRequest},
		{http.StatusUnauthorized, ErrAuthentication},
		{http.StatusForbidden, ErrPermission},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusGone, ErrNotFound},
		{http.StatusTooManyRequests, ErrRateLimit},
		{http.StatusServiceUnavailable, ErrOverloaded},
		{http.StatusGatewayTimeout, ErrTimeout},
		{http.StatusInternalServerError, ErrAPI},
		{http.StatusTeapot, ErrProvider},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromHTTPStatus("p", tt.status, "msg")
			if err.Type != tt.want {
				t.Errorf("Type = %v, want %v", err.Type, tt.want)
			}
			if err.Code != fmt.Sprintf("http_%d", tt.status) {
				t.Errorf("Code = %q", err.Code)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-expired.Done()

	canceled, cancel2 := context.WithCancel(context.Background())
	cancel2()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want Class
	}{
		{"auth", context.Background(), NewAuthenticationError("groq", "bad key"), ClassProviderUnavailable},
		{"rate limit", context.Background(), NewRateLimitError("groq", "slow down", 1), ClassProviderUnavailable},
		{"foreign", context.Background(), errors.New("boom"), ClassProviderUnavailable},
		{"typed timeout", context.Background(), NewTimeoutError("slow", nil), ClassTimeout},
		{"wrapped deadline", context.Background(), fmt.Errorf("call: %w", context.DeadlineExceeded), ClassTimeout},
		{"expired ctx wins", expired, NewAuthenticationError("groq", "bad key"), ClassTimeout},
		{"canceled ctx", canceled, errors.New("boom"), ClassCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.ctx, tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    bool
	}{
		{ErrRateLimit, true},
		{ErrOverloaded, true},
		{ErrAPI, true},
		{ErrTimeout, true},
		{ErrInvalidRequest, false},
		{ErrAuthentication, false},
		{ErrPermission, false},
		{ErrNotFound, false},
		{ErrProvider, false},
		{ErrUnconfigured, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			err := &Error{Type: tt.errType, Message: "test"}
			if got := err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTypeOf(t *testing.T) {
	if got := TypeOf(fmt.Errorf("wrap: %w", NewNotFoundError("openai", "model retired"))); got != ErrNotFound {
		t.Errorf("TypeOf(wrapped) = %v, want %v", got, ErrNotFound)
	}
	if got := TypeOf(errors.New("plain")); got != ErrAPI {
		t.Errorf("TypeOf(plain) = %v, want %v", got, ErrAPI)
	}
}

func TestIsFallthrough(t *testing.T) {
	if IsFallthrough(context.Background(), nil) {
		t.Error("nil error should not fall through")
	}
	if !IsFallthrough(context.Background(), NewNotFoundError("groq", "model decommissioned")) {
		t.Error("retired model should fall through")
	}
	if !IsFallthrough(context.Background(), NewMalformedError("openai", "empty choices")) {
		t.Error("malformed response should fall through")
	}
	if !IsFallthrough(context.Background(), FromHTTPStatus("groq", 504, "upstream timeout")) {
		t.Error("provider timeout should fall through while the chain has time left")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if IsFallthrough(ctx, errors.New("boom")) {
		t.Error("canceled chain should stop")
	}
}
