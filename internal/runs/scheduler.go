// SPDX-License-Identifier: MIT

package runs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreambooster/dreambooster/internal/log"
)

// Scheduler re-triggers runs on a fixed interval. A zero interval
// disables it; RunOnStart fires one run immediately.
type Scheduler struct {
	runner     *Runner
	interval   time.Duration
	runOnStart bool
	opts       Options
}

// NewScheduler builds a scheduler over the runner.
func NewScheduler(runner *Runner, interval time.Duration, runOnStart bool, opts Options) *Scheduler {
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		opts:       opts,
	}
}

// Start blocks until ctx is done, triggering runs per the schedule.
// A tick that lands during an active run is skipped, not queued.
func (s *Scheduler) Start(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "scheduler")

	if s.interval <= 0 && !s.runOnStart {
		logger.Debug().Str(log.FieldEvent, "scheduler.disabled").Msg("no interval and no on-start run")
		<-ctx.Done()
		return ctx.Err()
	}

	if s.runOnStart {
		s.trigger(ctx, logger)
	}

	if s.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info().
		Str(log.FieldEvent, "scheduler.start").
		Dur("interval", s.interval).
		Msg("run scheduler active")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.trigger(ctx, logger)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, logger zerolog.Logger) {
	_, err := s.runner.Run(ctx, s.opts)
	switch {
	case errors.Is(err, ErrRunInProgress):
		logger.Warn().
			Str(log.FieldEvent, "scheduler.skip").
			Msg("previous run still active, skipping tick")
	case errors.Is(err, context.Canceled):
	case err != nil:
		logger.Error().Err(err).
			Str(log.FieldEvent, "scheduler.run_failed").
			Msg("scheduled run failed")
	}
}
