package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/askmany/askmany"
	"github.com/askmany/askmany/internal/cache"
	"github.com/askmany/askmany/internal/config"
	"github.com/askmany/askmany/internal/enhance"
	"github.com/askmany/askmany/internal/observability"
	"github.com/askmany/askmany/internal/secret"
	"github.com/askmany/askmany/internal/secret/env"
	"github.com/askmany/askmany/internal/secret/vault"
	"github.com/askmany/askmany/internal/store"
)

// app holds the wired components shared by every command: configuration,
// logger, store and secret source. Commands build dispatchers and
// enhancers on top as needed.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   store.Store
	secrets *secret.Source

	backend cache.Cache
	manager *secret.Manager
}

// newApp loads .env files, configuration and wires the store and secret
// source. Callers must Close the app when done.
func newApp(ctx context.Context) (*app, error) {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	manager := secret.NewManager()
	manager.Register("env", env.New())
	if cfg.Secrets.Vault.Enabled {
		vp, err := vault.New(vault.Config{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			AuthMethod: cfg.Secrets.Vault.AuthMethod,
			RoleID:     cfg.Secrets.Vault.RoleID,
			SecretID:   cfg.Secrets.Vault.SecretID,
			CACert:     cfg.Secrets.Vault.CACert,
			ClientCert: cfg.Secrets.Vault.ClientCert,
			ClientKey:  cfg.Secrets.Vault.ClientKey,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect vault: %w", err)
		}
		var provider secret.Provider = vp
		if cfg.Secrets.CacheTTL > 0 {
			provider = secret.NewCachedProvider(vp, cfg.Secrets.CacheTTL)
		}
		manager.Register("vault", provider)
	}
	secrets := secret.NewSource(manager, cfg.Secrets.Keys, logger)

	st, err := openStore(ctx, cfg, secrets, logger)
	if err != nil {
		manager.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		secrets: secrets,
		manager: manager,
	}, nil
}

// Close releases the store, cache backend and secret providers.
func (a *app) Close() {
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Warn("cache close failed", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", "error", err)
		}
	}
	if a.manager != nil {
		if err := a.manager.Close(); err != nil {
			a.logger.Warn("secret providers close failed", "error", err)
		}
	}
}

// dispatcher builds a Dispatcher from the loaded configuration. Extra
// options are applied last and win over config-derived ones.
func (a *app) dispatcher(extra ...askmany.Option) (*askmany.Dispatcher, error) {
	return a.dispatcherFrom(a.cfg, extra...)
}

// dispatcherFrom builds a Dispatcher from an explicit configuration,
// used on config reload. The cache backend is created once and shared
// across rebuilds; cache backend changes need a restart.
func (a *app) dispatcherFrom(cfg *config.Config, extra ...askmany.Option) (*askmany.Dispatcher, error) {
	opts := []askmany.Option{
		askmany.WithMaxConcurrent(cfg.Dispatch.MaxConcurrent),
		askmany.WithTimeout(cfg.Dispatch.Timeout),
		askmany.WithTemperature(cfg.Dispatch.Temperature),
		askmany.WithMaxTokens(cfg.Dispatch.MaxTokens),
		askmany.WithRetry(cfg.Dispatch.RetryCount, cfg.Dispatch.RetryBackoff),
		askmany.WithLogger(a.logger),
	}
	if cfg.Dispatch.Referer != "" || cfg.Dispatch.Title != "" {
		opts = append(opts, askmany.WithAttribution(cfg.Dispatch.Referer, cfg.Dispatch.Title))
	}
	if cfg.Dispatch.AllowPrivateEndpoints {
		opts = append(opts, askmany.WithAllowPrivateEndpoints(true))
	}
	if cfg.Dispatch.RatePerSecond > 0 {
		opts = append(opts, askmany.WithRateLimit(cfg.Dispatch.RatePerSecond, cfg.Dispatch.RateBurst))
	}

	if cfg.Cache.Enabled {
		if a.backend == nil {
			backend, err := cache.New(cfg.Cache)
			if err != nil {
				return nil, fmt.Errorf("create cache: %w", err)
			}
			a.backend = backend
		}
		if a.backend != nil {
			oc := cache.NewOutcomeCache(a.backend, cfg.Cache.Namespace, cfg.Cache.TTL)
			opts = append(opts, askmany.WithCache(oc))
		}
	}

	opts = append(opts, extra...)
	return askmany.New(a.store, a.secrets, opts...)
}

// enhancer builds the prompt enhancer. The API key is resolved through
// the secret source under the "openrouter" short name.
func (a *app) enhancer(ctx context.Context) (*enhance.Enhancer, error) {
	if !a.cfg.Enhancer.Enabled {
		return nil, errors.New("prompt enhancement is disabled in configuration")
	}
	key, ok := a.secrets.Secret(ctx, "openrouter")
	if !ok {
		return nil, fmt.Errorf("no API key for the enhancer: set %s or configure secrets.keys.openrouter", secret.EnvVarName("openrouter"))
	}
	return enhance.New(enhance.Config{
		Endpoint: a.cfg.Enhancer.Endpoint,
		Model:    a.cfg.Enhancer.Model,
		APIKey:   key,
		Timeout:  a.cfg.Enhancer.Timeout,
	}, a.logger)
}

func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		return config.LoadFromFile(flagConfig)
	}
	return config.Load()
}

// newLogger builds the process logger. Command line flags override the
// configured level and format. Logs go to stderr; stdout is reserved for
// command output.
func newLogger(cfg *config.Config) *slog.Logger {
	level := cfg.Logging.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	format := cfg.Logging.Format
	if flagLogFormat != "" {
		format = flagLogFormat
	}
	return observability.NewLogger(observability.LoggerConfig{
		Level:  level,
		Format: format,
		Output: os.Stderr,
	}, observability.NewRedactor())
}

// openStore builds the configured store, optionally wrapped in an LRU
// read cache and seeded with starter models.
func openStore(ctx context.Context, cfg *config.Config, secrets *secret.Source, logger *slog.Logger) (store.Store, error) {
	var st store.Store
	switch cfg.Database.Driver {
	case "postgres":
		ps, err := store.NewPostgresStore(&store.PostgresConfig{
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Database:     cfg.Database.Database,
			SSLMode:      cfg.Database.SSLMode,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := ps.Migrate(ctx); err != nil {
			ps.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		st = ps
	default:
		st = store.NewMemoryStore()
	}

	if cfg.Database.CacheSize > 0 {
		st = store.NewCachedStore(st, cfg.Database.CacheSize, cfg.Database.CacheTTL)
	}

	if cfg.Database.Seed {
		if err := store.SeedDefaults(ctx, st, secrets, logger); err != nil {
			logger.Warn("seeding default models failed", "error", err)
		}
	}
	return st, nil
}
