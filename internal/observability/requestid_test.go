package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRequestIDIsUnique(t *testing.T) {
	a, b := newRequestID(), newRequestID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty request IDs")
	}
	if a == b {
		t.Error("expected unique request IDs")
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "abc-123")
	if got := RequestIDFromContext(ctx); got != "abc-123" {
		t.Errorf("got %q, want abc-123", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestRequestIDMiddleware_HonorsClientID(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-supplied.id_1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if seen != "client-supplied.id_1" {
		t.Errorf("context ID = %q, want client-supplied.id_1", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "client-supplied.id_1" {
		t.Errorf("response header = %q", got)
	}
}

func TestRequestIDMiddleware_ReplacesMalformedID(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id with spaces\n")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if seen == "" || strings.Contains(seen, " ") {
		t.Errorf("expected generated replacement ID, got %q", seen)
	}
	if len(seen) > maxRequestIDLen {
		t.Errorf("generated ID too long: %d", len(seen))
	}
}

func TestSanitizeRequestID(t *testing.T) {
	if _, ok := sanitizeRequestID(strings.Repeat("a", maxRequestIDLen+1)); ok {
		t.Error("expected overlong ID to be rejected")
	}
	if got, ok := sanitizeRequestID("  trimmed-ok  "); !ok || got != "trimmed-ok" {
		t.Errorf("got %q, %v", got, ok)
	}
	if _, ok := sanitizeRequestID("no/slashes"); ok {
		t.Error("expected slash to be rejected")
	}
}
