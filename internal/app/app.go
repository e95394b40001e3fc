// Package app wires configuration, storage, the lifecycle engine and its
// collaborators into one value shared by the HTTP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tapline/internal/analysis"
	"tapline/internal/config"
	"tapline/internal/db"
	"tapline/internal/engine"
	"tapline/internal/events"
	"tapline/internal/metrics"
	"tapline/internal/notify"
	"tapline/internal/repo"
	"tapline/internal/server"
	"tapline/internal/store"
	"tapline/internal/store/postgres"
	"tapline/internal/store/sqlite"
	"tapline/internal/token"
)

// Options select the workspace and overrides for New.
type Options struct {
	Workspace string
	// ConfigPath overrides <workspace>/tapline.yml.
	ConfigPath string
	Logger     *slog.Logger
	// Store replaces the configured store; used by tests.
	Store store.Store
}

// App is the assembled service.
type App struct {
	Config  *config.Config
	Secrets config.Secrets
	Store   store.Store
	Bus     *events.Bus
	Engine  engine.Engine
	Analyst *analysis.Orchestrator
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// LoadConfig reads path when set, otherwise the workspace file.
func LoadConfig(workspace, path string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	return config.Load(workspace)
}

// NewLogger returns a text logger at the named level (debug, info, warn, error).
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// OpenStore opens the store selected by cfg.Store.Driver.
func OpenStore(ctx context.Context, cfg *config.Config, secrets config.Secrets, workspace string) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "postgres":
		dsn := cfg.Store.DSN
		if dsn == "" {
			dsn = secrets.DatabaseURL
		}
		return postgres.Open(ctx, dsn)
	default:
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return nil, err
		}
		return sqlite.Open(ctx, db.Config{Workspace: workspace, Path: cfg.Store.DSN})
	}
}

// New loads configuration and secrets, opens the store and registers every
// enabled subscriber on the event bus.
func New(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := LoadConfig(opts.Workspace, opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return nil, err
	}
	if secrets.UsingDevSecret() {
		logger.Warn("TAPLINE_JWT_SECRET not set; invite links are signed with the development secret")
	}

	codec, err := token.New(secrets.SigningSecret(), cfg.TokenTTL())
	if err != nil {
		return nil, err
	}

	st := opts.Store
	if st == nil {
		st, err = OpenStore(ctx, cfg, secrets, opts.Workspace)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
		}
	}

	model, err := analysis.NewModel(ctx, cfg.Model, secrets)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("model provider: %w", err)
	}

	m := metrics.New()
	orch := analysis.New(model, cfg.Model)
	orch.Logger = logger
	orch.Observe = m.ObserveModel
	if orch.Offline() {
		logger.Warn("model provider disabled; analysis and synthesis return placeholder payloads", "provider", cfg.Model.Provider)
	}

	bus := events.NewBus(logger)
	e := engine.New(repo.Repo{Store: st, TTL: cfg.StoreTTL()}, cfg, codec, bus)
	e.Analyst = orch
	e.AppURL = secrets.AppURL
	e.Logger = logger
	e.Events.Logger = logger

	m.Register(bus)
	if secrets.SlackEnabled() {
		notify.NewSlack(secrets.SlackBotToken, secrets.SlackAPIURL, secrets.AppURL, e, logger).Register(bus)
	} else {
		logger.Info("slack disabled")
	}
	if secrets.NotionEnabled() {
		notify.NewNotion(secrets.NotionAPIKey, secrets.NotionDatabaseID, e, logger).Register(bus)
	} else {
		logger.Info("notion disabled")
	}
	if len(cfg.Webhooks) > 0 {
		notify.NewWebhooks(cfg.Webhooks, logger).Register(bus)
	}

	return &App{
		Config:  cfg,
		Secrets: secrets,
		Store:   st,
		Bus:     bus,
		Engine:  e,
		Analyst: orch,
		Metrics: m,
		Logger:  logger,
	}, nil
}

// Handler builds the HTTP API for the app.
func (a *App) Handler() (http.Handler, error) {
	return server.New(server.Config{
		Engine:       a.Engine,
		BasePath:     a.Config.Server.BasePath,
		AdminKey:     a.Secrets.AdminKey,
		SlackEnabled: a.Secrets.SlackEnabled(),
		Metrics:      a.Metrics.Handler(),
		Logger:       a.Logger,
	})
}

type purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Sweep removes expired records until ctx is done. Stores that expire on read
// only need no sweeping.
func (a *App) Sweep(ctx context.Context, every time.Duration) {
	p, ok := a.Store.(purger)
	if !ok || every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.Purge(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Warn("purge expired records failed", "err", err)
				continue
			}
			if n > 0 {
				a.Logger.Debug("purged expired records", "count", n)
			}
		}
	}
}

// Close waits for in-flight subscribers and closes the store.
func (a *App) Close() error {
	a.Bus.Wait()
	return a.Store.Close()
}
