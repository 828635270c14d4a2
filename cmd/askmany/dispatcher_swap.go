package main

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/askmany/askmany"
	"github.com/askmany/askmany/internal/config"
	"github.com/askmany/askmany/pkg/types"
)

// dispatchCloser is the slice of the Dispatcher API the swap needs.
type dispatchCloser interface {
	DispatchRequest(ctx context.Context, modelIDs []int64, req types.PromptRequest) ([]types.RequestOutcome, error)
	Close() error
}

// dispatcherSwap serves requests from the current dispatcher while a
// config reload installs a replacement. The retired dispatcher is closed
// once its last in-flight request finishes, so handles are never pulled
// out from under a running fan-out.
type dispatcherSwap struct {
	current atomic.Pointer[dispatcherRef]
}

type dispatcherRef struct {
	d       dispatchCloser
	refs    atomic.Int64
	closing atomic.Bool
	closed  atomic.Bool
}

func newDispatcherSwap(d dispatchCloser) *dispatcherSwap {
	s := &dispatcherSwap{}
	s.current.Store(&dispatcherRef{d: d})
	return s
}

// DispatchRequest forwards to the current dispatcher, holding a reference
// for the duration of the call.
func (s *dispatcherSwap) DispatchRequest(ctx context.Context, modelIDs []int64, req types.PromptRequest) ([]types.RequestOutcome, error) {
	ref := s.current.Load()
	ref.refs.Add(1)
	defer func() {
		if ref.refs.Add(-1) == 0 && ref.closing.Load() {
			ref.closeOnce()
		}
	}()
	return ref.d.DispatchRequest(ctx, modelIDs, req)
}

// Swap installs next and retires the previous dispatcher.
func (s *dispatcherSwap) Swap(next dispatchCloser) {
	prev := s.current.Swap(&dispatcherRef{d: next})
	if prev == nil {
		return
	}
	prev.closing.Store(true)
	if prev.refs.Load() == 0 {
		prev.closeOnce()
	}
}

// Close retires the current dispatcher without a replacement.
func (s *dispatcherSwap) Close() {
	ref := s.current.Load()
	if ref == nil {
		return
	}
	ref.closing.Store(true)
	if ref.refs.Load() == 0 {
		ref.closeOnce()
	}
}

func (r *dispatcherRef) closeOnce() {
	if r.closed.CompareAndSwap(false, true) {
		_ = r.d.Close()
	}
}

// dispatcherReloader rebuilds the dispatcher when the watched config file
// changes. Reloads are dropped, not queued, while one is in progress.
type dispatcherReloader struct {
	logger     *slog.Logger
	swap       *dispatcherSwap
	build      func(*config.Config) (*askmany.Dispatcher, error)
	inProgress atomic.Bool
}

func newDispatcherReloader(logger *slog.Logger, swap *dispatcherSwap, build func(*config.Config) (*askmany.Dispatcher, error)) *dispatcherReloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &dispatcherReloader{logger: logger, swap: swap, build: build}
}

func (r *dispatcherReloader) Reload(cfg *config.Config) {
	if !r.inProgress.CompareAndSwap(false, true) {
		r.logger.Warn("dispatcher reload already in progress")
		return
	}
	defer r.inProgress.Store(false)

	next, err := r.build(cfg)
	if err != nil {
		r.logger.Error("dispatcher rebuild failed, keeping previous", "error", err)
		return
	}
	if next == nil {
		r.logger.Error("dispatcher rebuild failed, keeping previous", "error", "nil dispatcher")
		return
	}

	r.swap.Swap(next)
	r.logger.Info("dispatcher reloaded",
		"max_concurrent", cfg.Dispatch.MaxConcurrent,
		"timeout", cfg.Dispatch.Timeout,
		"retry_count", cfg.Dispatch.RetryCount,
	)
}
