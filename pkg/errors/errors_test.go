package errors

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestDispatchError(t *testing.T) {
	t.Run("error message format", func(t *testing.T) {
		err := NewRateLimitError("openrouter", "gpt-4o-mini", "rate limit exceeded")
		msg := err.Error()

		if msg == "" {
			t.Error("error message should not be empty")
		}

		contains := []string{"rate_limit_error", "openrouter", "gpt-4o-mini", "429"}
		for _, s := range contains {
			if !strings.Contains(msg, s) {
				t.Errorf("error message should contain %q, got %q", s, msg)
			}
		}
	})

	t.Run("HTTP status codes", func(t *testing.T) {
		tests := []struct {
			name     string
			err      *DispatchError
			wantCode int
		}{
			{"model not found", NewModelNotFoundError(42), 404},
			{"inactive", NewModelInactiveError("m"), 409},
			{"missing credential", NewMissingCredentialError("p", "m"), 401},
			{"client construction", NewClientConstructionError("p", "m", "msg"), 500},
			{"timeout", NewTimeoutError("p", "m", 30*time.Second), 408},
			{"connection", NewConnectionError("p", "m", "msg"), 502},
			{"rate limit", NewRateLimitError("p", "m", "msg"), 429},
			{"payment required", NewPaymentRequiredError("p", "m", "msg"), 402},
			{"auth error", NewAuthenticationError("p", "m", "msg"), 401},
			{"endpoint not found", NewEndpointNotFoundError("p", "m", "msg"), 404},
			{"parse", NewParseError("p", "m", "msg"), 502},
			{"cancelled falls back to 500", NewCancelledError("p", "m"), 500},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := tt.err.HTTPStatusCode(); got != tt.wantCode {
					t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.wantCode)
				}
			})
		}
	})

	t.Run("retryable flag", func(t *testing.T) {
		retryable := []*DispatchError{
			NewRateLimitError("p", "m", "msg"),
			NewTimeoutError("p", "m", time.Second),
			NewConnectionError("p", "m", "msg"),
		}
		for _, err := range retryable {
			if !err.Retryable {
				t.Errorf("%s should be retryable", err.Type)
			}
		}

		notRetryable := []*DispatchError{
			NewModelNotFoundError(1),
			NewModelInactiveError("m"),
			NewMissingCredentialError("p", "m"),
			NewAuthenticationError("p", "m", "msg"),
			NewPaymentRequiredError("p", "m", "msg"),
			NewEndpointNotFoundError("p", "m", "msg"),
			NewParseError("p", "m", "msg"),
			NewCancelledError("p", "m"),
		}
		for _, err := range notRetryable {
			if err.Retryable {
				t.Errorf("%s should not be retryable", err.Type)
			}
		}
	})

	t.Run("cancelled message is the bare word", func(t *testing.T) {
		if got := NewCancelledError("p", "m").Message; got != "cancelled" {
			t.Errorf("Message = %q, want %q", got, "cancelled")
		}
	})

	t.Run("timeout message includes the configured value", func(t *testing.T) {
		err := NewTimeoutError("openai", "gpt-4o", 30*time.Second)
		if !strings.Contains(err.Message, "30s") {
			t.Errorf("timeout message should mention 30s, got %q", err.Message)
		}
	})
}

func TestFromStatusCode(t *testing.T) {
	tests := []struct {
		status   int
		wantType string
		wantHint string
	}{
		{http.StatusUnauthorized, TypeAuthentication, "check the configured credential"},
		{http.StatusPaymentRequired, TypePaymentRequired, "reduce max_tokens"},
		{http.StatusNotFound, TypeEndpointNotFound, "verify the endpoint URL"},
		{http.StatusTooManyRequests, TypeRateLimit, "wait before resubmitting"},
		{http.StatusInternalServerError, TypeConnection, "unexpected HTTP 500"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			err := FromStatusCode("openrouter", "some-model", tt.status, "upstream detail")
			if err.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", err.Type, tt.wantType)
			}
			if !strings.Contains(err.Message, tt.wantHint) {
				t.Errorf("Message = %q, want it to contain %q", err.Message, tt.wantHint)
			}
			if !strings.Contains(err.Message, "upstream detail") {
				t.Errorf("Message = %q, should carry the upstream detail", err.Message)
			}
		})
	}

	t.Run("5xx is retryable", func(t *testing.T) {
		if !FromStatusCode("p", "m", 503, "").Retryable {
			t.Error("503 should be marked retryable")
		}
		if FromStatusCode("p", "m", 400, "").Retryable {
			t.Error("400 should not be marked retryable")
		}
	})
}

func TestIsAndFrom(t *testing.T) {
	base := NewRateLimitError("openai", "gpt-4o", "slow down")
	wrapped := fmt.Errorf("send failed: %w", base)

	de, ok := From(wrapped)
	if !ok {
		t.Fatal("From should unwrap a DispatchError")
	}
	if de.Type != TypeRateLimit {
		t.Errorf("Type = %q, want %q", de.Type, TypeRateLimit)
	}

	if !Is(wrapped, TypeRateLimit) {
		t.Error("Is should match the wrapped type")
	}
	if Is(wrapped, TypeTimeout) {
		t.Error("Is should not match a different type")
	}
	if Is(fmt.Errorf("plain"), TypeRateLimit) {
		t.Error("Is should be false for non-dispatch errors")
	}
}
