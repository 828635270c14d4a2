package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordRequest(t *testing.T) {
	RecordRequest("openai", "gpt-4o", 200, 1500*time.Millisecond)
	RecordRequest("openai", "gpt-4o", 200, 2*time.Second)
	RecordRequest("openai", "gpt-4o", 429, 100*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(RequestsTotal.WithLabelValues("openai", "gpt-4o", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(RequestsTotal.WithLabelValues("openai", "gpt-4o", "429")))
}

func TestRecordTokens(t *testing.T) {
	RecordTokens("anthropic", "claude-3", 120)
	RecordTokens("anthropic", "claude-3", 0) // ignored

	require.Equal(t, 120.0, testutil.ToFloat64(TokenUsage.WithLabelValues("anthropic", "claude-3")))
}

func TestRecordRetry(t *testing.T) {
	RecordRetry("openrouter", "rate_limited")
	RecordRetry("openrouter", "rate_limited")
	RecordRetry("openrouter", "payment_required")

	require.Equal(t, 2.0, testutil.ToFloat64(RetriesTotal.WithLabelValues("openrouter", "rate_limited")))
	require.Equal(t, 1.0, testutil.ToFloat64(RetriesTotal.WithLabelValues("openrouter", "payment_required")))
}

func TestSanitizeModelLabel(t *testing.T) {
	if got := sanitizeModelLabel("openai/gpt-4o-mini"); got != "gpt-4o-mini" {
		t.Fatalf("sanitizeModelLabel = %q, want %q", got, "gpt-4o-mini")
	}

	got := sanitizeModelLabel("gpt-4o\n\t!")
	if strings.ContainsAny(got, "\n\t") {
		t.Fatalf("sanitizeModelLabel kept whitespace: %q", got)
	}

	long := strings.Repeat("a", maxModelLabelLen+50)
	if got := sanitizeModelLabel(long); len(got) != maxModelLabelLen {
		t.Fatalf("sanitizeModelLabel len = %d, want %d", len(got), maxModelLabelLen)
	}

	if got := sanitizeModelLabel("   "); got != "unknown" {
		t.Fatalf("sanitizeModelLabel = %q, want %q", got, "unknown")
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/dispatch", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/v1/dispatch", "GET", "418")))
}
