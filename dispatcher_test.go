package askmany

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/askmany/askmany/internal/cache"
	"github.com/askmany/askmany/internal/store"
	"github.com/askmany/askmany/pkg/types"
)

// mapSecrets resolves provider short names from a plain map.
type mapSecrets map[string]string

func (m mapSecrets) Secret(_ context.Context, name string) (string, bool) {
	v, ok := m[name]
	return v, ok && v != ""
}

// countingSecrets counts lookups, proving handle reuse across dispatches.
type countingSecrets struct {
	mapSecrets
	calls atomic.Int64
}

func (c *countingSecrets) Secret(ctx context.Context, name string) (string, bool) {
	c.calls.Add(1)
	return c.mapSecrets.Secret(ctx, name)
}

// countingTransport fails every round trip and counts attempts, proving a
// code path never reached the network.
type countingTransport struct {
	calls atomic.Int64
}

func (c *countingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return nil, errors.New("unexpected network call")
}

// progressRecorder collects per-model progress messages.
type progressRecorder struct {
	mu       sync.Mutex
	messages map[int64][]string
}

func newProgressRecorder() *progressRecorder {
	return &progressRecorder{messages: make(map[int64][]string)}
}

func (p *progressRecorder) record(modelID int64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[modelID] = append(p.messages[modelID], message)
}

func (p *progressRecorder) forModel(modelID int64) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.messages[modelID]...)
}

func (p *progressRecorder) contains(modelID int64, message string) bool {
	for _, m := range p.forModel(modelID) {
		if m == message {
			return true
		}
	}
	return false
}

type recordedRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// chatServer is an OpenAI-compatible stub that answers every model with
// "reply for <model>" and records the decoded request bodies.
type chatServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []recordedRequest
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()

	cs := &chatServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recordedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cs.mu.Lock()
		cs.bodies = append(cs.bodies, req)
		cs.mu.Unlock()
		writeChatCompletion(w, "reply for "+req.Model, 5)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (c *chatServer) requests() []recordedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recordedRequest(nil), c.bodies...)
}

func writeChatCompletion(w http.ResponseWriter, text string, tokens int) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}],"usage":{"total_tokens":%d}}`, text, tokens)
}

// seedModels creates a memory store with the given models. Ids are
// assigned sequentially starting at 1.
func seedModels(t *testing.T, models ...types.Model) *store.MemoryStore {
	t.Helper()

	st := store.NewMemoryStore()
	for i := range models {
		if err := st.CreateModel(context.Background(), &models[i]); err != nil {
			t.Fatalf("CreateModel() error = %v", err)
		}
	}
	return st
}

func activeModel(name, endpoint string) types.Model {
	return types.Model{
		Name:          name,
		APIEndpoint:   endpoint,
		CredentialKey: "OPENAI_API_KEY",
		IsActive:      true,
	}
}

func newTestDispatcher(t *testing.T, models ModelSource, secrets SecretSource, opts ...Option) *Dispatcher {
	t.Helper()

	base := []Option{
		WithAllowPrivateEndpoints(true),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	d, err := New(models, secrets, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

type dispatchResult struct {
	outcomes []types.RequestOutcome
	err      error
}

func awaitDispatch(t *testing.T, done <-chan dispatchResult) dispatchResult {
	t.Helper()

	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not return")
		return dispatchResult{}
	}
}

func TestNew_RequiresSources(t *testing.T) {
	if _, err := New(nil, mapSecrets{}); err == nil {
		t.Error("expected error for nil model source")
	}
	if _, err := New(store.NewMemoryStore(), nil); err == nil {
		t.Error("expected error for nil secret source")
	}
}

func TestDispatch_ModelNotFound(t *testing.T) {
	transport := &countingTransport{}
	d := newTestDispatcher(t, seedModels(t), mapSecrets{"openai": "sk-test"},
		WithHTTPClient(&http.Client{Transport: transport}),
	)

	outcomes, err := d.Dispatch(context.Background(), []int64{42}, "hello")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}

	out := outcomes[0]
	if out.Succeeded {
		t.Error("expected failure for unknown model id")
	}
	if out.ModelID != 42 {
		t.Errorf("ModelID = %d, want 42", out.ModelID)
	}
	if !strings.Contains(out.Error, "not found") {
		t.Errorf("Error = %q, want it to mention not found", out.Error)
	}
	if n := transport.calls.Load(); n != 0 {
		t.Errorf("network calls = %d, want 0", n)
	}
}

func TestDispatch_InactiveModel(t *testing.T) {
	m := activeModel("gpt-test", "http://127.0.0.1:9/v1/chat/completions")
	m.IsActive = false

	transport := &countingTransport{}
	d := newTestDispatcher(t, seedModels(t, m), mapSecrets{"openai": "sk-test"},
		WithHTTPClient(&http.Client{Transport: transport}),
	)

	outcomes, err := d.Dispatch(context.Background(), []int64{1}, "hello")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	out := outcomes[0]
	if out.Succeeded {
		t.Error("expected failure for inactive model")
	}
	if out.ModelName != "gpt-test" {
		t.Errorf("ModelName = %q, want %q", out.ModelName, "gpt-test")
	}
	if !strings.Contains(out.Error, "inactive") {
		t.Errorf("Error = %q, want it to mention inactive", out.Error)
	}
	if n := transport.calls.Load(); n != 0 {
		t.Errorf("network calls = %d, want 0", n)
	}
}

func TestDispatch_MissingCredential(t *testing.T) {
	// The endpoint and name match no variant; the message must still name
	// the provider derived from the credential key.
	m := types.Model{
		Name:          "mix-8x7b",
		APIEndpoint:   "http://127.0.0.1:9/v1/chat/completions",
		CredentialKey: "OPENROUTER_API_KEY",
		IsActive:      true,
	}

	transport := &countingTransport{}
	d := newTestDispatcher(t, seedModels(t, m), mapSecrets{},
		WithHTTPClient(&http.Client{Transport: transport}),
	)

	outcomes, err := d.Dispatch(context.Background(), []int64{1}, "hello")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	out := outcomes[0]
	if out.Succeeded {
		t.Error("expected failure for missing credential")
	}
	if !strings.Contains(out.Error, "no API key configured for openrouter") {
		t.Errorf("Error = %q, want it to name the openrouter credential", out.Error)
	}
	if n := transport.calls.Load(); n != 0 {
		t.Errorf("network calls = %d, want 0", n)
	}
}

func TestDispatch_OrderAndDuplicates(t *testing.T) {
	srv := newChatServer(t)
	st := seedModels(t,
		activeModel("gpt-a", srv.URL),
		activeModel("gpt-b", srv.URL),
		activeModel("gpt-c", srv.URL),
	)
	d := newTestDispatcher(t, st, mapSecrets{"openai": "sk-test"})

	ids := []int64{2, 1, 3, 2}
	outcomes, err := d.Dispatch(context.Background(), ids, "hello")
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	wantNames := []string{"gpt-b", "gpt-a", "gpt-c", "gpt-b"}
	for i, out := range outcomes {
		if out.ModelID != ids[i] {
			t.Errorf("outcome[%d].ModelID = %d, want %d", i, out.ModelID, ids[i])
		}
		if !out.Succeeded {
			t.Errorf("outcome[%d] failed: %s", i, out.Error)
			continue
		}
		if out.ModelName != wantNames[i] {
			t.Errorf("outcome[%d].ModelName = %q, want %q", i, out.ModelName, wantNames[i])
		}
		if want := "reply for " + wantNames[i]; out.ResponseText != want {
			t.Errorf("outcome[%d].ResponseText = %q, want %q", i, out.ResponseText, want)
		}
		if out.TokensUsed == nil || *out.TokensUsed != 5 {
			t.Errorf("outcome[%d].TokensUsed = %v, want 5", i, out.TokensUsed)
		}
	}

	if tally := d.LastTally(); tally.Succeeded != 4 || tally.Total != 4 {
		t.Errorf("LastTally() = %+v, want 4/4", tally)
	}
}

func TestDispatch_EmptyModelList(t *testing.T) {
	d := newTestDispatcher(t, seedModels(t), mapSecrets{})

	outcomes, err := d.Dispatch(context.Background(), nil, "hello")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcomes == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(outcomes) != 0 {
		t.Errorf("expected 0 outcomes, got %d", len(outcomes))
	}
	if tally := d.LastTally(); tally.Total != 0 {
		t.Errorf("LastTally() = %+v, want 0/0", tally)
	}
}

func TestDispatch_ConcurrencyCap(t *testing.T) {
	var inFlight, maxSeen atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxSeen.Load()
			if cur <= prev || maxSeen.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		writeChatCompletion(w, "ok", 1)
	}))
	t.Cleanup(srv.Close)

	st := seedModels(t,
		activeModel("gpt-1", srv.URL),
		activeModel("gpt-2", srv.URL),
		activeModel("gpt-3", srv.URL),
		activeModel("gpt-4", srv.URL),
	)
	d := newTestDispatcher(t, st, mapSecrets{"openai": "sk-test"}, WithMaxConcurrent(1))

	outcomes, err := d.Dispatch(context.Background(), []int64{1, 2, 3, 4}, "hello")
	require.NoError(t, err)
	for _, out := range outcomes {
		if !out.Succeeded {
			t.Errorf("model %d failed: %s", out.ModelID, out.Error)
		}
	}
	if got := maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent requests = %d, want 1", got)
	}
}

func TestDispatch_RunsModelsInParallel(t *testing.T) {
	// Every handler blocks until all four requests arrived; anything less
	// than four-way concurrency would stall into the timeout.
	const modelCount = 4
	var arrived atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if arrived.Add(1) == modelCount {
			close(release)
		}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		writeChatCompletion(w, "ok", 1)
	}))
	t.Cleanup(srv.Close)

	st := seedModels(t,
		activeModel("gpt-1", srv.URL),
		activeModel("gpt-2", srv.URL),
		activeModel("gpt-3", srv.URL),
		activeModel("gpt-4", srv.URL),
	)
	d := newTestDispatcher(t, st, mapSecrets{"openai": "sk-test"},
		WithTimeout(5*time.Second),
	)

	outcomes, err := d.Dispatch(context.Background(), []int64{1, 2, 3, 4}, "hello")
	require.NoError(t, err)
	for _, out := range outcomes {
		if !out.Succeeded {
			t.Fatalf("model %d failed: %s", out.ModelID, out.Error)
		}
	}
}

func TestDispatch_RateLimitRetry(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"message":"slow down"}}`)
			return
		}
		writeChatCompletion(w, "finally", 2)
	}))
	t.Cleanup(srv.Close)

	rec := newProgressRecorder()
	d := newTestDispatcher(t, seedModels(t, activeModel("gpt-test", srv.URL)), mapSecrets{"openai": "sk-test"},
		WithRetry(3, time.Second),
		WithProgress(rec.record),
	)

	var slept []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}

	outcomes, err := d.Dispatch(context.Background(), []int64{1}, "hello")
	require.NoError(t, err)

	out := outcomes[0]
	if !out.Succeeded {
		t.Fatalf("expected success after retries, got %q", out.Error)
	}
	if out.ResponseText != "finally" {
		t.Errorf("ResponseText = %q, want %q", out.ResponseText, "finally")
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)

	if !rec.contains(1, "rate limited, retrying in 1s") {
		t.Errorf("progress messages = %v, want a retry notice", rec.forModel(1))
	}
}

func TestDispatch_RateLimitExhausted(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"slow down"}}`)
	}))
	t.Cleanup(srv.Close)

	d := newTestDispatcher(t, seedModels(t, activeModel("gpt-test", srv.URL)), mapSecrets{"openai": "sk-test"},
		WithRetry(2, time.Second),
	)

	var slept []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}

	outcomes, err := d.Dispatch(context.Background(), []int64{1}, "hello")
	require.NoError(t, err)

	out := outcomes[0]
	if out.Succeeded {
		t.Fatal("expected failure after exhausted retries")
	}
	if !strings.Contains(out.Error, "rate limited by openai") {
		t.Errorf("Error = %q, want a rate limit message", out.Error)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3 (initial + 2 retries)", got)
	}
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestDispatch_BudgetHintResubmit(t *testing.T) {
	var hits atomic.Int64
	var mu sync.Mutex
	var bodies []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recordedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		bodies = append(bodies, req)
		mu.Unlock()

		if hits.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			io.WriteString(w, `{"error":{"message":"This request requires more credits. You requested up to 1000 tokens, but can only afford 732."}}`)
			return
		}
		writeChatCompletion(w, "within budget", 3)
	}))
	t.Cleanup(srv.Close)

	m := types.Model{
		Name:          "openrouter-auto",
		APIEndpoint:   srv.URL,
		CredentialKey: "OPENROUTER_API_KEY",
		IsActive:      true,
	}
	rec := newProgressRecorder()
	d := newTestDispatcher(t, seedModels(t, m), mapSecrets{"openrouter": "sk-or-v1-test"},
		WithProgress(rec.record),
	)

	outcomes, err := d.Dispatch(context.Background(), []int64{1}, "hello")
	require.NoError(t, err)

	out := outcomes[0]
	if !out.Succeeded {
		t.Fatalf("expected success after resubmit, got %q", out.Error)
	}
	if out.ResponseText != "within budget" {
		t.Errorf("ResponseText = %q, want %q", out.ResponseText, "within budget")
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	if bodies[0].MaxTokens != 1000 {
		t.Errorf("first request max_tokens = %d, want the openrouter default 1000", bodies[0].MaxTokens)
	}
	if bodies[1].MaxTokens != 682 {
		t.Errorf("resubmit max_tokens = %d, want 682 (732 minus safety margin)", bodies[1].MaxTokens)
	}

	if !rec.contains(1, "insufficient credits, resubmitting with max_tokens=682") {
		t.Errorf("progress messages = %v, want a resubmit notice", rec.forModel(1))
	}
}

func TestDispatch_BudgetHintResubmitsOnlyOnce(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		io.WriteString(w, `{"error":{"message":"can only afford 732"}}`)
	}))
	t.Cleanup(srv.Close)

	m := types.Model{
		Name:          "openrouter-auto",
		APIEndpoint:   srv.URL,
		CredentialKey: "OPENROUTER_API_KEY",
		IsActive:      true,
	}
	d := newTestDispatcher(t, seedModels(t, m), mapSecrets{"openrouter": "sk-or-v1-test"})

	outcomes, err := d.Dispatch(context.Background(), []int64{1}, "hello")
	require.NoError(t, err)

	out := outcomes[0]
	if out.Succeeded {
		t.Fatal("expected failure when the resubmit is also rejected")
	}
	if !strings.Contains(out.Error, "insufficient credits") {
		t.Errorf("Error = %q, want an insufficient credits message", out.Error)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2 (initial + one resubmit)", got)
	}
}

func TestDispatch_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	d := newTestDispatcher(t, seedModels(t, activeModel("gpt-test", srv.URL)), mapSecrets{"openai": "sk-test"},
		WithTimeout(50*time.Millisecond),
	)

	outcomes, err := d.Dispatch(context.Background(), []int64{1}, "hello")
	require.NoError(t, err)

	out := outcomes[0]
	if out.Succeeded {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(out.Error, "timed out") {
		t.Errorf("Error = %q, want a timeout message", out.Error)
	}
}

func TestDispatch_CancelAbortsInFlightAndQueued(t *testing.T) {
	var hits atomic.Int64
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		once.Do(func() { close(started) })
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)

	st := seedModels(t,
		activeModel("gpt-1", srv.URL),
		activeModel("gpt-2", srv.URL),
	)
	d := newTestDispatcher(t, st, mapSecrets{"openai": "sk-test"}, WithMaxConcurrent(1))

	done := make(chan dispatchResult, 1)
	go func() {
		outs, err := d.Dispatch(context.Background(), []int64{1, 2}, "hello")
		done <- dispatchResult{outs, err}
	}()

	<-started
	d.Cancel()

	res := awaitDispatch(t, done)
	require.NoError(t, res.err)
	require.Len(t, res.outcomes, 2)
	for _, out := range res.outcomes {
		if out.Succeeded {
			t.Errorf("model %d unexpectedly succeeded", out.ModelID)
		}
		if out.Error != "cancelled" {
			t.Errorf("model %d Error = %q, want %q", out.ModelID, out.Error, "cancelled")
		}
	}

	// Only the in-flight request may have reached the server; the queued
	// model must be cancelled without network traffic.
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestDispatch_CancelPreservesFinishedResults(t *testing.T) {
	slowArrived := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recordedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Model == "gpt-slow" {
			close(slowArrived)
			<-r.Context().Done()
			return
		}
		writeChatCompletion(w, "fast response", 2)
	}))
	t.Cleanup(srv.Close)

	st := seedModels(t,
		activeModel("gpt-fast", srv.URL),
		activeModel("gpt-slow", srv.URL),
	)

	fastDone := make(chan struct{})
	progress := func(modelID int64, message string) {
		if modelID == 1 && message == "success" {
			close(fastDone)
		}
	}
	d := newTestDispatcher(t, st, mapSecrets{"openai": "sk-test"}, WithProgress(progress))

	done := make(chan dispatchResult, 1)
	go func() {
		outs, err := d.Dispatch(context.Background(), []int64{1, 2}, "hello")
		done <- dispatchResult{outs, err}
	}()

	<-slowArrived
	<-fastDone
	d.Cancel()

	res := awaitDispatch(t, done)
	require.NoError(t, res.err)
	require.Len(t, res.outcomes, 2)

	fast, slow := res.outcomes[0], res.outcomes[1]
	if !fast.Succeeded {
		t.Fatalf("finished result was discarded: %q", fast.Error)
	}
	if fast.ResponseText != "fast response" {
		t.Errorf("fast ResponseText = %q, want %q", fast.ResponseText, "fast response")
	}
	if slow.Succeeded || slow.Error != "cancelled" {
		t.Errorf("slow outcome = %+v, want cancelled failure", slow)
	}

	if tally := d.LastTally(); tally.Succeeded != 1 || tally.Total != 2 {
		t.Errorf("LastTally() = %+v, want 1/2", tally)
	}
}

func TestDispatch_HandleReusedAcrossDispatches(t *testing.T) {
	srv := newChatServer(t)
	secrets := &countingSecrets{mapSecrets: mapSecrets{"openai": "sk-test"}}
	d := newTestDispatcher(t, seedModels(t, activeModel("gpt-test", srv.URL)), secrets)

	for i := 0; i < 2; i++ {
		outcomes, err := d.Dispatch(context.Background(), []int64{1}, "hello")
		require.NoError(t, err)
		if !outcomes[0].Succeeded {
			t.Fatalf("dispatch %d failed: %s", i, outcomes[0].Error)
		}
	}

	if got := secrets.calls.Load(); got != 1 {
		t.Errorf("secret lookups = %d, want 1 (handle should be cached)", got)
	}
	if got := len(srv.requests()); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestDispatch_AfterCloseFails(t *testing.T) {
	srv := newChatServer(t)
	d := newTestDispatcher(t, seedModels(t, activeModel("gpt-test", srv.URL)), mapSecrets{"openai": "sk-test"})

	if _, err := d.Dispatch(context.Background(), []int64{1}, "hello"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if _, err := d.Dispatch(context.Background(), []int64{1}, "hello"); !errors.Is(err, ErrClosed) {
		t.Errorf("Dispatch() after Close error = %v, want ErrClosed", err)
	}
}

func TestDispatch_ProgressCallbacks(t *testing.T) {
	srv := newChatServer(t)
	rec := newProgressRecorder()
	d := newTestDispatcher(t, seedModels(t, activeModel("gpt-test", srv.URL)), mapSecrets{"openai": "sk-test"},
		WithProgress(rec.record),
	)

	_, err := d.Dispatch(context.Background(), []int64{1, 99}, "hello")
	require.NoError(t, err)

	for _, id := range []int64{1, 99} {
		messages := rec.forModel(id)
		if len(messages) < 2 {
			t.Fatalf("model %d got %d progress messages, want at least 2", id, len(messages))
		}
		if messages[0] != "sending request" {
			t.Errorf("model %d first message = %q, want %q", id, messages[0], "sending request")
		}
	}

	okMessages := rec.forModel(1)
	if last := okMessages[len(okMessages)-1]; last != "success" {
		t.Errorf("terminal message = %q, want %q", last, "success")
	}
	failMessages := rec.forModel(99)
	if last := failMessages[len(failMessages)-1]; !strings.HasPrefix(last, "error: ") {
		t.Errorf("terminal message = %q, want an error message", last)
	}
}

func TestDispatch_RequestParameterOverrides(t *testing.T) {
	srv := newChatServer(t)
	d := newTestDispatcher(t, seedModels(t, activeModel("gpt-test", srv.URL)), mapSecrets{"openai": "sk-test"})

	_, err := d.Dispatch(context.Background(), []int64{1}, "hello")
	require.NoError(t, err)

	temp := 0.2
	tokens := 64
	_, err = d.DispatchRequest(context.Background(), []int64{1}, types.PromptRequest{
		Prompt:      "hello",
		Temperature: &temp,
		MaxTokens:   &tokens,
	})
	require.NoError(t, err)

	reqs := srv.requests()
	require.Len(t, reqs, 2)
	if reqs[0].Temperature != 0.7 || reqs[0].MaxTokens != 2000 {
		t.Errorf("default request = %+v, want temperature 0.7 and max_tokens 2000", reqs[0])
	}
	if reqs[1].Temperature != 0.2 || reqs[1].MaxTokens != 64 {
		t.Errorf("override request = %+v, want temperature 0.2 and max_tokens 64", reqs[1])
	}
}

func TestDispatch_OutcomeCache(t *testing.T) {
	srv := newChatServer(t)
	oc := cache.NewOutcomeCache(cache.NewMemoryCache(time.Minute), "test", time.Minute)
	t.Cleanup(func() { _ = oc.Close() })

	rec := newProgressRecorder()
	d := newTestDispatcher(t, seedModels(t, activeModel("gpt-test", srv.URL)), mapSecrets{"openai": "sk-test"},
		WithCache(oc),
		WithProgress(rec.record),
	)

	first, err := d.Dispatch(context.Background(), []int64{1}, "hello")
	require.NoError(t, err)
	require.True(t, first[0].Succeeded)

	second, err := d.Dispatch(context.Background(), []int64{1}, "hello")
	require.NoError(t, err)
	require.True(t, second[0].Succeeded)

	if got := len(srv.requests()); got != 1 {
		t.Errorf("server hits = %d, want 1 (second dispatch should hit the cache)", got)
	}
	if second[0].ResponseText != first[0].ResponseText {
		t.Errorf("cached ResponseText = %q, want %q", second[0].ResponseText, first[0].ResponseText)
	}
	if second[0].ModelID != 1 {
		t.Errorf("cached ModelID = %d, want 1", second[0].ModelID)
	}
	if !rec.contains(1, "success (cached)") {
		t.Errorf("progress messages = %v, want a cached success notice", rec.forModel(1))
	}

	// A different prompt misses and goes back to the network.
	_, err = d.Dispatch(context.Background(), []int64{1}, "another prompt")
	require.NoError(t, err)
	if got := len(srv.requests()); got != 2 {
		t.Errorf("server hits = %d, want 2 after a cache miss", got)
	}
}
