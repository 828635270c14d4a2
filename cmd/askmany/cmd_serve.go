package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/askmany/askmany"
	"github.com/askmany/askmany/internal/api"
	"github.com/askmany/askmany/internal/config"
	"github.com/askmany/askmany/internal/metrics"
	"github.com/askmany/askmany/internal/observability"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the askmany HTTP API: fan-out dispatch, model registry
administration, prompt enhancement, health and Prometheus metrics.
When started with --config the file is watched and dispatch settings
are applied to new requests without a restart.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	var baseOpts []askmany.Option
	if cfg.Tracing.Enabled {
		baseOpts = append(baseOpts, askmany.WithTracer(tp.Tracer()))
	}

	d, err := a.dispatcher(baseOpts...)
	if err != nil {
		return err
	}
	swap := newDispatcherSwap(d)
	defer swap.Close()

	handler := api.NewHandler(swap, a.store, logger)

	if cfg.Enhancer.Enabled {
		enhancer, err := a.enhancer(ctx)
		if err != nil {
			logger.Warn("enhance endpoint disabled", "error", err)
		} else {
			handler = handler.WithEnhancer(enhancer)
		}
	}

	if cfg.Archive.Enabled {
		archiver, err := observability.NewArchiver(ctx, observability.ArchiveConfig{
			Bucket:   cfg.Archive.Bucket,
			Region:   cfg.Archive.Region,
			Prefix:   cfg.Archive.Prefix,
			Endpoint: cfg.Archive.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("start archiver: %w", err)
		}
		handler = handler.WithArchiver(archiver)
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := archiver.Shutdown(shCtx); err != nil {
				logger.Warn("archiver shutdown failed", "error", err)
			}
		}()
	}

	if flagConfig != "" {
		manager, err := config.NewManager(flagConfig, logger)
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
		} else {
			reloader := newDispatcherReloader(logger, swap, func(next *config.Config) (*askmany.Dispatcher, error) {
				return a.dispatcherFrom(next, baseOpts...)
			})
			manager.OnChange(reloader.Reload)
			if err := manager.Watch(); err != nil {
				logger.Warn("config watch disabled", "error", err)
			}
			defer manager.Close()
		}
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.Handler())
	}

	var httpHandler http.Handler = mux
	httpHandler = requestLogMiddleware(logger, httpHandler)
	httpHandler = observability.RequestIDMiddleware(httpHandler)
	httpHandler = metrics.Middleware(httpHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", server.Addr, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shCtx)
	})
	return g.Wait()
}
