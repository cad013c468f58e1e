// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	dblog "github.com/dreambooster/dreambooster/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ConfigHolder holds configuration with atomic reloading capability.
// It provides thread-safe access to configuration and supports hot reloading
// from file or manual trigger via API.
type ConfigHolder struct {
	mu      sync.RWMutex
	current Config
	loader  *Loader
	paths   []string
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	// Reload notifications
	reloadMu        sync.RWMutex
	reloadListeners []chan<- Config
}

// NewConfigHolder creates a new configuration holder with initial config.
// paths lists the files whose writes trigger an automatic reload, typically
// config.yaml and secrets.yaml inside the data directory.
func NewConfigHolder(initial Config, loader *Loader, paths ...string) *ConfigHolder {
	return &ConfigHolder{
		current:         initial,
		loader:          loader,
		paths:           paths,
		logger:          dblog.WithComponent("config"),
		reloadListeners: make([]chan<- Config, 0),
	}
}

// Get returns the current configuration (thread-safe read).
func (h *ConfigHolder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload reloads configuration from the data directory and validates it.
// If loading or validation fails, the old configuration is kept and an error
// is returned. Either the full config is valid and applied, or the old config
// remains unchanged.
func (h *ConfigHolder) Reload(_ context.Context) error {
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("event", "config.reload_failed").
			Msg("failed to load new configuration, keeping current")
		return fmt.Errorf("load config: %w", err)
	}

	// Atomically swap configuration
	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	// Notify listeners of config change
	h.notifyListeners(newCfg)

	// Log configuration changes
	h.logChanges(oldCfg, newCfg)

	h.logger.Info().
		Str("event", "config.reload_success").
		Msg("configuration reloaded successfully")

	return nil
}

// StartWatcher starts watching the config files for changes.
// If no paths were registered, this is a no-op (config comes from ENV only).
func (h *ConfigHolder) StartWatcher(ctx context.Context) error {
	if len(h.paths) == 0 {
		h.logger.Info().
			Str("event", "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	h.watcher = watcher

	for _, p := range h.paths {
		if err := watcher.Add(p); err != nil {
			_ = watcher.Close() // Ignore close error in error path
			return fmt.Errorf("watch config file %s: %w", p, err)
		}
	}

	h.logger.Info().
		Str("event", "config.watcher_started").
		Strs("paths", h.paths).
		Msg("watching config files for changes")

	// Start watcher goroutine
	go h.watchLoop(ctx)

	return nil
}

// watchLoop is the main file watcher loop.
func (h *ConfigHolder) watchLoop(ctx context.Context) {
	// Debounce timer to avoid multiple reloads for rapid file changes
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			if h.watcher != nil {
				_ = h.watcher.Close() // Ignore close error in error path
			}
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			// Watch for Write and Create events (covers vim, nano, echo)
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				h.logger.Debug().
					Str("event", "config.file_changed").
					Str("op", event.Op.String()).
					Str("path", event.Name).
					Msg("config file changed")

				// Debounce: reset timer on each event
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := h.Reload(ctx); err != nil {
						h.logger.Error().
							Err(err).
							Str("event", "config.auto_reload_failed").
							Msg("automatic config reload failed")
					}
				})
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str("event", "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Stop stops the config watcher (if running).
func (h *ConfigHolder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close() // Ignore close error in error path
	}
}

// RegisterListener registers a channel to receive config reload notifications.
// The channel will receive the new config whenever a reload succeeds.
// The caller is responsible for closing the channel.
func (h *ConfigHolder) RegisterListener(ch chan<- Config) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

// notifyListeners sends the new config to all registered listeners (non-blocking).
func (h *ConfigHolder) notifyListeners(newCfg Config) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()

	for _, ch := range h.reloadListeners {
		select {
		case ch <- newCfg:
		default:
			// Skip if channel is full (non-blocking send)
			h.logger.Warn().
				Str("event", "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

// logChanges logs the differences between old and new configuration.
func (h *ConfigHolder) logChanges(old, newCfg Config) {
	if old.LogLevel != newCfg.LogLevel {
		h.logger.Info().
			Str("old", old.LogLevel).
			Str("new", newCfg.LogLevel).
			Msg("config changed: LogLevel")
	}
	if old.Parallelism != newCfg.Parallelism {
		h.logger.Info().
			Int("old", old.Parallelism).
			Int("new", newCfg.Parallelism).
			Msg("config changed: Parallelism")
	}
	if old.RunInterval != newCfg.RunInterval {
		h.logger.Info().
			Dur("old", old.RunInterval).
			Dur("new", newCfg.RunInterval).
			Msg("config changed: RunInterval")
	}
	if old.SkipApply != newCfg.SkipApply {
		h.logger.Info().
			Bool("old", old.SkipApply).
			Bool("new", newCfg.SkipApply).
			Msg("config changed: SkipApply")
	}
	if len(old.Settings.Positions) != len(newCfg.Settings.Positions) {
		h.logger.Info().
			Int("old", len(old.Settings.Positions)).
			Int("new", len(newCfg.Settings.Positions)).
			Msg("config changed: Positions")
	}
	if old.Settings.Matching.MatchThreshold != newCfg.Settings.Matching.MatchThreshold {
		h.logger.Info().
			Float64("old", old.Settings.Matching.MatchThreshold).
			Float64("new", newCfg.Settings.Matching.MatchThreshold).
			Msg("config changed: MatchThreshold")
	}
	if len(old.Settings.JobPortals) != len(newCfg.Settings.JobPortals) {
		h.logger.Info().
			Int("old", len(old.Settings.JobPortals)).
			Int("new", len(newCfg.Settings.JobPortals)).
			Msg("config changed: JobPortals")
	}
	if old.Settings.LLMModel != newCfg.Settings.LLMModel {
		h.logger.Info().
			Str("old", old.Settings.LLMModel).
			Str("new", newCfg.Settings.LLMModel).
			Msg("config changed: LLMModel")
	}
}
