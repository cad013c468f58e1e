// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dreambooster/dreambooster/internal/api"
	"github.com/dreambooster/dreambooster/internal/config"
	"github.com/dreambooster/dreambooster/internal/runs"
)

// App owns the long-lived runtime lifecycle (config watcher, reload
// wiring, scheduler) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      *Manager
	cfgHolder    *config.ConfigHolder
	apiServer    *api.Server
	scheduler    *runs.Scheduler
	reloadSignal os.Signal
}

// NewApp creates the daemon orchestrator. cfgHolder, apiServer, and
// scheduler are each optional.
func NewApp(logger zerolog.Logger, manager *Manager, cfgHolder *config.ConfigHolder, apiServer *api.Server, scheduler *runs.Scheduler) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		apiServer:    apiServer,
		scheduler:    scheduler,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts all owned background subsystems and blocks until ctx is
// cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return errors.New("manager is required")
	}

	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup must not fail on it.
	if a.cfgHolder != nil {
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
		}
	}

	// Reload wiring: swap the API server snapshot on every config change.
	if a.cfgHolder != nil && a.apiServer != nil {
		applyCh := make(chan config.Config, 1)
		a.cfgHolder.RegisterListener(applyCh)

		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.apiServer.ApplyConfig(cfg)
					a.logger.Info().Str("event", "config.applied").Msg("configuration swap applied")
				}
			}
		})
	}

	// SIGHUP triggers a manual reload.
	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.cfgHolder.Reload(context.Background()); err != nil {
						a.logger.Warn().
							Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	// Run scheduler (stops via ctx).
	if a.scheduler != nil {
		g.Go(func() error {
			if err := a.scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	// Main server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}
