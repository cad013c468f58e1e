// SPDX-License-Identifier: MIT

package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dreambooster/dreambooster/internal/apply"
	"github.com/dreambooster/dreambooster/internal/listing"
	"github.com/dreambooster/dreambooster/internal/log"
	"github.com/dreambooster/dreambooster/internal/match"
	"github.com/dreambooster/dreambooster/internal/metrics"
	"github.com/dreambooster/dreambooster/internal/portal"
	"github.com/dreambooster/dreambooster/internal/resilience"
	"github.com/dreambooster/dreambooster/internal/telemetry"
	"github.com/dreambooster/dreambooster/internal/track"
)

const (
	defaultParallelism = 2
	maxParallelism     = 8

	defaultMinPageWait = 15 * time.Second
	defaultMaxPageWait = 60 * time.Second
)

// Deps holds the collaborators a Runner needs.
type Deps struct {
	Portals   []Portal
	Evaluator Evaluator
	Applier   Applier
	Ledger    Ledger
	Seen      SeenStore
	Companies CompanyStore
	// Breakers guards portals by name. Portals without an entry run
	// unguarded.
	Breakers map[string]Breaker
	// Exporter, when set, snapshots saved answers to
	// Config.AnswerExportPath after each completed run.
	Exporter AnswerExporter
	Config   Config
}

// Runner executes application runs, one at a time.
type Runner struct {
	deps Deps

	running atomic.Bool

	mu        sync.Mutex
	paused    bool
	resumeCh  chan struct{}
	lastRun   *Stats
	lastError string

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// New validates deps and builds a runner.
func New(deps Deps) (*Runner, error) {
	if len(deps.Portals) == 0 {
		return nil, fmt.Errorf("%w: no portals configured", ErrNotPreflighted)
	}
	if deps.Evaluator == nil {
		return nil, fmt.Errorf("%w: evaluator is required", ErrNotPreflighted)
	}
	if deps.Applier == nil {
		return nil, fmt.Errorf("%w: applier is required", ErrNotPreflighted)
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("%w: ledger is required", ErrNotPreflighted)
	}
	if deps.Seen == nil {
		return nil, fmt.Errorf("%w: seen store is required", ErrNotPreflighted)
	}
	if len(deps.Config.Plan.Positions) == 0 || len(deps.Config.Plan.Locations) == 0 {
		return nil, fmt.Errorf("%w: search plan needs at least one position and location", ErrNotPreflighted)
	}
	if deps.Config.Parallelism <= 0 {
		deps.Config.Parallelism = defaultParallelism
	}
	if deps.Config.MinPageWait <= 0 {
		deps.Config.MinPageWait = defaultMinPageWait
	}
	if deps.Config.MaxPageWait < deps.Config.MinPageWait {
		deps.Config.MaxPageWait = defaultMaxPageWait
	}

	return &Runner{
		deps: deps,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- shuffle and waits only
	}, nil
}

// Running reports whether a run is active.
func (r *Runner) Running() bool { return r.running.Load() }

// Status returns a snapshot of the runner state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := StateIdle
	if r.running.Load() {
		state = StateRunning
		if r.paused {
			state = StatePaused
		}
	}

	var last *Stats
	if r.lastRun != nil {
		cp := *r.lastRun
		last = &cp
	}

	return Status{State: state, LastRun: last, LastError: r.lastError}
}

// LastRun returns the completion time and error of the most recent run,
// for readiness checks.
func (r *Runner) LastRun() (time.Time, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastRun == nil {
		return time.Time{}, r.lastError
	}
	return r.lastRun.EndTime, r.lastError
}

// Pause blocks the run loop at the next listing boundary.
func (r *Runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		return
	}
	r.paused = true
	r.resumeCh = make(chan struct{})
}

// Resume releases a paused run.
func (r *Runner) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.paused {
		return
	}
	r.paused = false
	close(r.resumeCh)
}

// gate blocks while the runner is paused.
func (r *Runner) gate(ctx context.Context) error {
	for {
		r.mu.Lock()
		if !r.paused {
			r.mu.Unlock()
			return nil
		}
		ch := r.resumeCh
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Run executes one full run. Only one run may be active; concurrent
// triggers get ErrRunInProgress.
func (r *Runner) Run(ctx context.Context, opts Options) (*Stats, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	runID := uuid.NewString()
	ctx = log.ContextWithRunID(ctx, runID)
	logger := log.WithComponentFromContext(ctx, "runs")

	tracer := telemetry.Tracer("dreambooster.runs")
	ctx, span := tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String(telemetry.RunIDKey, runID),
	))
	defer span.End()

	stats := &Stats{RunID: runID, StartTime: time.Now()}
	metrics.SetRunActive(true)
	defer metrics.SetRunActive(false)

	logger.Info().
		Str(log.FieldEvent, "run.start").
		Str(log.FieldRunID, runID).
		Int("portals", len(r.deps.Portals)).
		Msg("starting application run")

	parallelism := clampParallelism(opts.Parallelism, r.deps.Config.Parallelism)

	runErr := r.runPortals(ctx, opts, parallelism, stats)

	stats.EndTime = time.Now()
	stats.DurationMS = stats.EndTime.Sub(stats.StartTime).Milliseconds()
	metrics.ObserveRunDuration(stats.EndTime.Sub(stats.StartTime))

	outcome := "completed"
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		outcome = "canceled"
	case runErr != nil:
		outcome = "failed"
	}
	metrics.IncRun(outcome)
	span.SetAttributes(telemetry.RunAttributes(runID, outcome, stats.DurationMS)...)
	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
	}

	r.mu.Lock()
	r.lastRun = stats
	if runErr != nil {
		r.lastError = runErr.Error()
	} else {
		r.lastError = ""
	}
	r.mu.Unlock()

	if runErr == nil && r.deps.Exporter != nil && r.deps.Config.AnswerExportPath != "" {
		if err := r.deps.Exporter.Export(ctx, r.deps.Config.AnswerExportPath); err != nil {
			logger.Warn().
				Err(err).
				Str(log.FieldEvent, "run.answer_export_failed").
				Msg("answer snapshot export failed")
		}
	}

	logger.Info().
		Str(log.FieldEvent, "run.done").
		Str(log.FieldRunID, runID).
		Str("outcome", outcome).
		Int("jobs_seen", stats.JobsSeen).
		Int("jobs_suitable", stats.JobsSuitable).
		Int("applied", stats.Applied).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Int64("duration_ms", stats.DurationMS).
		Msg("application run finished")

	return stats, runErr
}

func (r *Runner) runPortals(ctx context.Context, opts Options, parallelism int, stats *Stats) error {
	logger := log.WithComponentFromContext(ctx, "runs")

	for _, p := range r.deps.Portals {
		if err := ctx.Err(); err != nil {
			return err
		}

		breaker := r.breakerFor(p.Name())

		err := breaker.Execute(func() error { return p.Login(ctx) })
		switch {
		case errors.Is(err, portal.ErrSecurityCheck):
			logger.Warn().
				Str(log.FieldEvent, "run.security_check").
				Str(log.FieldPortal, p.Name()).
				Msg("portal requires manual action, skipping until next run")
			r.noteError(stats, fmt.Sprintf("portal %s: manual security check required", p.Name()))
			continue
		case errors.Is(err, resilience.ErrCircuitOpen):
			logger.Warn().
				Str(log.FieldEvent, "run.breaker_open").
				Str(log.FieldPortal, p.Name()).
				Msg("portal circuit open, skipping")
			r.noteError(stats, fmt.Sprintf("portal %s: circuit open", p.Name()))
			continue
		case err != nil:
			logger.Error().Err(err).
				Str(log.FieldEvent, "run.login_failed").
				Str(log.FieldPortal, p.Name()).
				Msg("portal login failed")
			r.noteError(stats, fmt.Sprintf("portal %s: login: %v", p.Name(), err))
			continue
		}

		if err := r.runPlan(ctx, p, breaker, opts, parallelism, stats); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.noteError(stats, fmt.Sprintf("portal %s: %v", p.Name(), err))
		}
	}

	return ctx.Err()
}

// runPlan walks every position × location pair, paginating until an
// empty page ends the pair.
func (r *Runner) runPlan(ctx context.Context, p Portal, breaker Breaker, opts Options, parallelism int, stats *Stats) error {
	logger := log.WithComponentFromContext(ctx, "runs")

	pairs := r.shuffledPairs()
	for _, pair := range pairs {
		for page := 0; ; page++ {
			if err := r.gate(ctx); err != nil {
				return err
			}

			q := portal.SearchQuery{Position: pair[0], Location: pair[1], Page: page}

			var listings []listing.Listing
			err := breaker.Execute(func() error {
				var serr error
				listings, serr = p.Search(ctx, q)
				return serr
			})
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				return fmt.Errorf("search %q in %q page %d: %w", pair[0], pair[1], page, err)
			}

			r.locked(func() { stats.PagesFetched++ })

			if len(listings) == 0 {
				logger.Debug().
					Str(log.FieldEvent, "run.pair_done").
					Str(log.FieldPortal, p.Name()).
					Str(log.FieldPosition, pair[0]).
					Str(log.FieldLocation, pair[1]).
					Int(log.FieldPage, page).
					Msg("empty page ends this pair")
				break
			}

			r.processPage(ctx, p, opts, parallelism, listings, stats)

			if err := ctx.Err(); err != nil {
				return err
			}

			if err := r.pageWait(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

// processPage evaluates and applies to one page of listings on a bounded
// worker pool. Individual listing failures are recorded, never fatal.
func (r *Runner) processPage(ctx context.Context, p Portal, opts Options, parallelism int, listings []listing.Listing, stats *Stats) {
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for _, l := range listings {
		l := l
		wg.Add(1)
		go func() {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := r.gate(ctx); err != nil {
				return
			}
			if ctx.Err() != nil {
				return
			}

			r.processListing(ctx, p, opts, l, stats)
		}()
	}

	wg.Wait()
}

func (r *Runner) processListing(ctx context.Context, p Portal, opts Options, l listing.Listing, stats *Stats) {
	logger := log.WithComponentFromContext(ctx, "runs")
	runID := log.RunIDFromContext(ctx)

	metrics.IncJobSeen()
	r.locked(func() { stats.JobsSeen++ })

	verdict, err := r.deps.Evaluator.EvaluateWith(ctx, l, match.EvalOptions{IgnoreSeen: opts.Force})
	if err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "run.evaluate_failed").
			Str(log.FieldListingID, l.ID).
			Msg("listing evaluation failed")
		r.locked(func() {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("evaluate %s: %v", l.ID, err))
		})
		return
	}

	// Every evaluated listing is marked seen so the next run skips it.
	if err := r.deps.Seen.MarkSeen(ctx, l.ID); err != nil {
		logger.Warn().Err(err).
			Str(log.FieldEvent, "run.mark_seen_failed").
			Str(log.FieldListingID, l.ID).
			Msg("could not mark listing seen")
	}

	if !verdict.Suitable {
		metrics.IncSkip(verdict.Reason)
		r.locked(func() { stats.Skipped++ })
		r.record(ctx, track.Record{
			RunID:  runID,
			Portal: p.Name(),
			JobID:  l.ID,
			Title:  l.Title, Company: l.Company, Location: l.Location, Link: l.Link,
			Status: track.StatusSkipped,
			Reason: verdict.Reason,
			Score:  verdict.Score,
		})
		return
	}

	metrics.IncJobSuitable()
	r.locked(func() { stats.JobsSuitable++ })

	outcome, err := r.applyTo(ctx, p, opts, l)
	if err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "run.apply_failed").
			Str(log.FieldListingID, l.ID).
			Str(log.FieldPortal, p.Name()).
			Msg("application failed")
		r.locked(func() {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("apply %s: %v", l.ID, err))
		})
		r.record(ctx, track.Record{
			RunID:  runID,
			Portal: p.Name(),
			JobID:  l.ID,
			Title:  l.Title, Company: l.Company, Location: l.Location, Link: l.Link,
			Status: track.StatusFailed,
			Reason: err.Error(),
			Score:  verdict.Score,
		})
		return
	}

	rec := track.Record{
		RunID:  runID,
		Portal: p.Name(),
		JobID:  l.ID,
		Title:  l.Title, Company: l.Company, Location: l.Location, Link: l.Link,
		Score:   verdict.Score,
		Answers: marshalAnswers(outcome.Answers),
	}

	if outcome.Skipped {
		rec.Status = track.StatusSkipped
		rec.Reason = outcome.Reason
		metrics.IncSkip(outcome.Reason)
		r.locked(func() { stats.Skipped++ })
		r.record(ctx, rec)
		return
	}

	rec.Status = track.StatusApplied
	r.locked(func() { stats.Applied++ })
	r.record(ctx, rec)

	if r.deps.Companies != nil {
		if err := r.deps.Companies.RecordApplication(ctx, l.Company); err != nil {
			logger.Warn().Err(err).
				Str(log.FieldEvent, "run.record_company_failed").
				Str("company", l.Company).
				Msg("could not record company application")
		}
	}

	logger.Info().
		Str(log.FieldEvent, "run.applied").
		Str(log.FieldListingID, l.ID).
		Str(log.FieldPortal, p.Name()).
		Str("title", l.Title).
		Str("company", l.Company).
		Int("attempts", outcome.Attempts).
		Msg("application submitted")
}

func (r *Runner) applyTo(ctx context.Context, p Portal, opts Options, l listing.Listing) (*apply.Outcome, error) {
	if opts.SkipApply {
		return r.deps.Applier.DryRun(ctx, p, l)
	}
	return r.deps.Applier.Apply(ctx, p, l)
}

func (r *Runner) record(ctx context.Context, rec track.Record) {
	if err := r.deps.Ledger.Add(ctx, rec); err != nil {
		logger := log.WithComponentFromContext(ctx, "runs")
		logger.Error().Err(err).
			Str(log.FieldEvent, "run.ledger_failed").
			Str(log.FieldListingID, rec.JobID).
			Msg("could not record application outcome")
	}
}

func (r *Runner) noteError(stats *Stats, msg string) {
	r.locked(func() { stats.Errors = append(stats.Errors, msg) })
}

// locked serializes stats mutation from pool workers.
func (r *Runner) locked(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

func (r *Runner) breakerFor(name string) Breaker {
	if b, ok := r.deps.Breakers[name]; ok && b != nil {
		return b
	}
	return noopBreaker{}
}

// shuffledPairs returns the positions × locations plan in random order,
// so repeated runs do not hit the portal in a recognizable pattern.
func (r *Runner) shuffledPairs() [][2]string {
	plan := r.deps.Config.Plan
	pairs := make([][2]string, 0, len(plan.Positions)*len(plan.Locations))
	for _, pos := range plan.Positions {
		for _, loc := range plan.Locations {
			pairs = append(pairs, [2]string{pos, loc})
		}
	}

	r.rndMu.Lock()
	r.rnd.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
	r.rndMu.Unlock()

	return pairs
}

// pageWait pauses between search pages for a random duration within the
// configured window.
func (r *Runner) pageWait(ctx context.Context) error {
	if r.deps.Config.FastWaits {
		return nil
	}

	window := r.deps.Config.MaxPageWait - r.deps.Config.MinPageWait
	wait := r.deps.Config.MinPageWait
	if window > 0 {
		r.rndMu.Lock()
		wait += time.Duration(r.rnd.Int63n(int64(window)))
		r.rndMu.Unlock()
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func clampParallelism(requested, configured int) int {
	p := requested
	if p <= 0 {
		p = configured
	}
	if p <= 0 {
		p = defaultParallelism
	}
	if p > maxParallelism {
		p = maxParallelism
	}
	return p
}

func marshalAnswers(answers map[string]string) json.RawMessage {
	if len(answers) == 0 {
		return nil
	}
	b, err := json.Marshal(answers)
	if err != nil {
		return nil
	}
	return b
}
