package askmany

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/askmany/askmany/internal/metrics"
	"github.com/askmany/askmany/internal/observability"
	"github.com/askmany/askmany/internal/resilience"
	askerrors "github.com/askmany/askmany/pkg/errors"
	"github.com/askmany/askmany/pkg/provider"
	"github.com/askmany/askmany/pkg/types"
	"github.com/askmany/askmany/providers"
)

// ErrClosed is returned by Dispatch after Close. It is the only failure
// that escapes Dispatch as an error; every per-model problem folds into
// that model's outcome instead.
var ErrClosed = errors.New("askmany: dispatcher is closed")

// ModelSource looks up model rows by id. *store.MemoryStore and
// *store.PostgresStore satisfy it; lookups return (nil, nil) for ids
// that have no row.
type ModelSource interface {
	GetModel(ctx context.Context, id int64) (*types.Model, error)
}

// Dispatcher fans one prompt out to many models concurrently and
// aggregates one outcome per requested id. Client handles are cached per
// model id and reused across sequential fan-outs until Close.
//
// Dispatcher is safe for concurrent use by multiple goroutines.
type Dispatcher struct {
	models  ModelSource
	secrets providers.SecretSource
	cfg     *dispatcherConfig
	logger  *slog.Logger
	sem     *resilience.Semaphore

	handleMu sync.RWMutex
	handles  map[int64]*provider.Client

	closed       atomic.Bool
	cancelFlag   atomic.Bool
	activeCancel atomic.Pointer[context.CancelFunc]

	tallyMu   sync.Mutex
	lastTally types.Tally

	// sleep is the retry backoff clock, replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a dispatcher over the given model registry and secret
// source.
func New(models ModelSource, secrets SecretSource, opts ...Option) (*Dispatcher, error) {
	if models == nil {
		return nil, errors.New("askmany: model source is required")
	}
	if secrets == nil {
		return nil, errors.New("askmany: secret source is required")
	}

	cfg := defaultDispatcherConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	d := &Dispatcher{
		models:  models,
		secrets: secrets,
		cfg:     cfg,
		logger:  cfg.logger,
		sem:     resilience.NewSemaphore(cfg.maxConcurrent),
		handles: make(map[int64]*provider.Client),
		sleep:   sleepContext,
	}

	metrics.SetConcurrencyLimit(d.sem.Capacity())
	d.logger.Info("dispatcher initialized",
		"max_concurrent", d.sem.Capacity(),
		"retry_count", cfg.retryCount,
		"cache_enabled", cfg.cache.Enabled(),
	)
	return d, nil
}

// Dispatch fans prompt out to the given model ids with the dispatcher's
// default sampling parameters. See DispatchRequest.
func (d *Dispatcher) Dispatch(ctx context.Context, modelIDs []int64, prompt string) ([]types.RequestOutcome, error) {
	return d.DispatchRequest(ctx, modelIDs, types.PromptRequest{Prompt: prompt})
}

// DispatchRequest fans one request out to the given model ids and blocks
// until every model reached a terminal state. The returned slice has
// exactly one outcome per requested id, in input order; duplicates each
// get their own slot. One model failing never aborts the others.
func (d *Dispatcher) DispatchRequest(ctx context.Context, modelIDs []int64, req types.PromptRequest) ([]types.RequestOutcome, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if len(modelIDs) == 0 {
		d.logger.Warn("dispatch called with no model ids")
		d.setTally(types.Tally{})
		return []types.RequestOutcome{}, nil
	}

	start := time.Now()

	// Per-call bookkeeping resets here; cached handles persist.
	d.cancelFlag.Store(false)
	runCtx, cancel := context.WithCancel(ctx)
	d.activeCancel.Store(&cancel)
	defer func() {
		d.activeCancel.Store(nil)
		cancel()
	}()

	if d.cfg.tracer != nil {
		var span trace.Span
		runCtx, span = observability.StartDispatchSpan(runCtx, d.cfg.tracer, len(modelIDs))
		defer span.End()
	}

	d.logger.Info("dispatch started",
		"models", len(modelIDs),
		"prompt_chars", len(req.Prompt),
	)

	outcomes := make([]types.RequestOutcome, len(modelIDs))
	var wg sync.WaitGroup
	for i, id := range modelIDs {
		wg.Add(1)
		go func(slot int, modelID int64) {
			defer wg.Done()
			outcomes[slot] = d.runModel(runCtx, modelID, req)
		}(i, id)
	}
	wg.Wait()

	tally := types.TallyOutcomes(outcomes)
	d.setTally(tally)
	metrics.RecordDispatch(len(modelIDs), time.Since(start))
	d.logger.Info("dispatch complete",
		"succeeded", tally.Succeeded,
		"total", tally.Total,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return outcomes, nil
}

// Cancel requests cooperative cancellation of the in-progress fan-out.
// Models that have not started produce "cancelled" outcomes without any
// network traffic; in-flight requests get their context cancelled. A
// result that already finished is preserved, never discarded.
func (d *Dispatcher) Cancel() {
	d.cancelFlag.Store(true)
	if cancel := d.activeCancel.Load(); cancel != nil {
		(*cancel)()
	}
	d.logger.Info("dispatch cancellation requested")
}

// LastTally returns the success/total count of the most recent fan-out.
func (d *Dispatcher) LastTally() types.Tally {
	d.tallyMu.Lock()
	defer d.tallyMu.Unlock()
	return d.lastTally
}

// Close closes and clears every cached client handle. It is idempotent;
// Dispatch after Close fails fast with ErrClosed.
func (d *Dispatcher) Close() error {
	if d.closed.Swap(true) {
		return nil
	}

	d.handleMu.Lock()
	defer d.handleMu.Unlock()

	var errs []error
	for id, client := range d.handles {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close handle for model %d: %w", id, err))
		}
	}
	d.handles = make(map[int64]*provider.Client)

	d.logger.Info("dispatcher closed")
	return errors.Join(errs...)
}

// runModel drives one model from resolution to a terminal outcome.
func (d *Dispatcher) runModel(ctx context.Context, id int64, req types.PromptRequest) types.RequestOutcome {
	start := time.Now()
	d.notify(id, "sending request")

	client, model, derr := d.resolve(ctx, id)
	if derr != nil {
		d.notify(id, "error: "+derr.Message)
		metrics.RecordError(providerLabel(derr.Provider), derr.Type)
		return types.NewFailureOutcome(id, derr.Model, time.Since(start), derr.Message)
	}

	cfg := client.Config()
	preq := &provider.Request{
		Prompt:      req.Prompt,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	if req.Temperature != nil {
		preq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		preq.MaxTokens = *req.MaxTokens
	}

	if d.cancelledNow(ctx) {
		d.notify(id, "cancelled")
		return types.NewFailureOutcome(id, model.Name, time.Since(start), "cancelled")
	}

	// A cache hit never touches the network.
	if d.cfg.cache.Enabled() {
		if cached, ok := d.cfg.cache.Lookup(ctx, model.Name, req.Prompt, preq.Temperature, preq.MaxTokens); ok {
			metrics.RecordCacheHit(model.Name)
			out := *cached
			out.ModelID = id
			out.ModelName = model.Name
			d.notify(id, "success (cached)")
			d.logger.Debug("outcome cache hit", "model", model.Name)
			return out
		}
		metrics.RecordCacheMiss(model.Name)
	}

	variant := client.Adapter().Name()
	sctx := ctx
	var span trace.Span
	if d.cfg.tracer != nil {
		sctx, span = observability.StartModelSpan(ctx, d.cfg.tracer, observability.ModelSpanAttributes{
			Provider:    variant,
			Model:       model.Name,
			MaxTokens:   preq.MaxTokens,
			Temperature: preq.Temperature,
		})
	}

	res, err := d.send(sctx, client, id, preq)
	elapsed := time.Since(start)

	if err != nil {
		msg := errorMessage(err)
		if span != nil {
			observability.RecordOutcome(span, false, nil, msg)
			span.End()
		}
		if de, ok := askerrors.From(err); ok && de.Type != askerrors.TypeCancelled {
			metrics.RecordRequest(variant, model.Name, de.StatusCode, elapsed)
			metrics.RecordError(variant, de.Type)
		}
		if askerrors.Is(err, askerrors.TypeCancelled) {
			d.notify(id, "cancelled")
		} else {
			d.notify(id, "error: "+msg)
		}
		return types.NewFailureOutcome(id, model.Name, elapsed, msg)
	}

	if span != nil {
		observability.RecordOutcome(span, true, res.TokensUsed, "")
		span.End()
	}

	outcome := types.NewSuccessOutcome(id, model.Name, res.Text, elapsed, res.TokensUsed)
	metrics.RecordRequest(variant, model.Name, 200, elapsed)
	if res.TokensUsed != nil {
		metrics.RecordTokens(variant, model.Name, *res.TokensUsed)
	}
	d.notify(id, "success")

	if d.cfg.cache.Enabled() {
		if err := d.cfg.cache.Store(ctx, req.Prompt, preq.Temperature, preq.MaxTokens, outcome); err != nil {
			d.logger.Debug("outcome cache store failed", "model", model.Name, "error", err)
		}
	}

	return outcome
}

// resolve performs the no-network phase: registry lookup, active check,
// and cached-or-created client handle. Any failure comes back as a
// DispatchError whose Message becomes the outcome's error text.
func (d *Dispatcher) resolve(ctx context.Context, id int64) (*provider.Client, *types.Model, *askerrors.DispatchError) {
	model, err := d.models.GetModel(ctx, id)
	if err != nil {
		return nil, nil, askerrors.NewClientConstructionError("", "",
			fmt.Sprintf("model %d lookup failed: %v", id, err))
	}
	if model == nil {
		return nil, nil, askerrors.NewModelNotFoundError(id)
	}
	if !model.IsActive {
		return nil, model, askerrors.NewModelInactiveError(model.Name)
	}

	client, err := d.handle(ctx, *model)
	if err != nil {
		if de, ok := askerrors.From(err); ok {
			return nil, model, de
		}
		return nil, model, askerrors.NewClientConstructionError("", model.Name, err.Error())
	}
	return client, model, nil
}

// handle returns the cached client for a model or creates and caches a
// new one. Creation failures are not cached, so a later dispatch retries
// them (a missing secret may have been configured in the meantime).
func (d *Dispatcher) handle(ctx context.Context, model types.Model) (*provider.Client, error) {
	d.handleMu.RLock()
	client, ok := d.handles[model.ID]
	d.handleMu.RUnlock()
	if ok {
		return client, nil
	}

	d.handleMu.Lock()
	defer d.handleMu.Unlock()
	if client, ok := d.handles[model.ID]; ok {
		return client, nil
	}

	client, err := providers.CreateForModel(ctx, model, d.secrets, providers.Options{
		Timeout:               d.cfg.timeout,
		Temperature:           d.cfg.temperature,
		MaxTokens:             d.cfg.maxTokens,
		Referer:               d.cfg.referer,
		Title:                 d.cfg.title,
		AllowPrivateEndpoints: d.cfg.allowPrivate,
		Logger:                d.logger,
		HTTPClient:            d.cfg.httpClient,
	})
	if err != nil {
		return nil, err
	}

	d.handles[model.ID] = client
	d.logger.Debug("client handle created",
		"model", model.Name,
		"variant", client.Adapter().Name(),
	)
	return client, nil
}

// send runs the bounded, rate-smoothed request loop for one model:
// acquire the concurrency gate, then attempt the call with rate-limit
// backoff and the one-shot budget resubmit until a terminal result.
func (d *Dispatcher) send(ctx context.Context, client *provider.Client, id int64, req *provider.Request) (*provider.Result, error) {
	variant, model := client.Adapter().Name(), client.Config().Model

	if err := d.sem.Acquire(ctx); err != nil {
		return nil, askerrors.NewCancelledError(variant, model)
	}
	defer d.sem.Release()

	if d.cancelledNow(ctx) {
		return nil, askerrors.NewCancelledError(variant, model)
	}

	if d.cfg.limiter != nil {
		if err := d.cfg.limiter.Wait(ctx); err != nil {
			return nil, askerrors.NewCancelledError(variant, model)
		}
	}

	metrics.InFlightRequests.Inc()
	defer metrics.InFlightRequests.Dec()

	var budgetRetried bool
	rateRetries := 0

	for {
		res, err := client.Do(ctx, req)
		if err == nil {
			return res, nil
		}

		de, ok := askerrors.From(err)
		if !ok || de.Type == askerrors.TypeCancelled {
			return nil, err
		}
		if d.cancelledNow(ctx) {
			return nil, askerrors.NewCancelledError(variant, model)
		}

		// Payment-required with an affordable-token hint: exactly one
		// immediate resubmit under the reduced budget.
		if de.Type == askerrors.TypePaymentRequired && !budgetRetried {
			if hinter, isHinter := client.Adapter().(provider.BudgetHinter); isHinter {
				if budget, hinted := hinter.RetryBudget(err); hinted {
					budgetRetried = true
					req = &provider.Request{
						Prompt:      req.Prompt,
						Temperature: req.Temperature,
						MaxTokens:   budget,
					}
					d.notify(id, fmt.Sprintf("insufficient credits, resubmitting with max_tokens=%d", budget))
					metrics.RecordRetry(variant, "budget_hint")
					d.logger.Debug("resubmitting under reduced token budget",
						"model", model, "max_tokens", budget)
					continue
				}
			}
		}

		if de.Type == askerrors.TypeRateLimit && rateRetries < d.cfg.retryCount {
			backoff := d.cfg.retryBackoff * time.Duration(1<<rateRetries)
			rateRetries++
			d.notify(id, fmt.Sprintf("rate limited, retrying in %s", backoff))
			metrics.RecordRetry(variant, "rate_limit")
			if sleepErr := d.sleep(ctx, backoff); sleepErr != nil {
				return nil, askerrors.NewCancelledError(variant, model)
			}
			continue
		}

		return nil, err
	}
}

func (d *Dispatcher) cancelledNow(ctx context.Context) bool {
	return d.cancelFlag.Load() || ctx.Err() != nil
}

func (d *Dispatcher) notify(id int64, msg string) {
	if d.cfg.progress != nil {
		d.cfg.progress(id, msg)
	}
}

func (d *Dispatcher) setTally(t types.Tally) {
	d.tallyMu.Lock()
	d.lastTally = t
	d.tallyMu.Unlock()
}

// errorMessage extracts the plain message for an outcome row: the
// DispatchError message without its type/provider decoration, or the raw
// error text for anything else.
func errorMessage(err error) string {
	if de, ok := askerrors.From(err); ok {
		return de.Message
	}
	return err.Error()
}

func providerLabel(p string) string {
	if p == "" {
		return "unknown"
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
