// Package app owns the application lifecycle: it wires the dependencies,
// starts the reference feed and the trading engine, and tears everything
// down in reverse order on shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/updownlabs/updownbot/internal/config"
	"github.com/updownlabs/updownbot/internal/engine"
	"github.com/updownlabs/updownbot/internal/strategy"
)

// App is the root application object.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and blocks until the context is cancelled or a
// fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.Bool("dry_run", a.cfg.Engine.DryRun),
		slog.String("asset", a.cfg.Engine.Asset))
	a.logger.DebugContext(ctx, "active configuration",
		slog.Any("config", config.RedactedConfig(&a.cfg)))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	pure := strategy.NewPureArb(a.cfg.Pure, a.logger)
	temporal := strategy.NewTemporal(a.cfg.Temporal, a.logger)

	eng := engine.New(a.cfg, deps.Registry, deps.Books, deps.Feed,
		deps.Risk, deps.Executor, pure, temporal,
		deps.Notifier, deps.Audit, deps.Ticks, deps.Bus, deps.FinObs, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.Feed.Run(gctx) })
	g.Go(func() error { return eng.Run(gctx) })
	if deps.Metrics != nil {
		g.Go(func() error { return deps.Metrics.Serve(gctx, a.cfg.Obs.ListenAddr, a.logger) })
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. Safe to call
// more than once.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
