// SPDX-License-Identifier: MIT

// Package runs drives application runs: the search plan over every
// portal, the suitability gate, the apply flow, and the scheduler that
// re-triggers runs on an interval.
package runs

import (
	"context"
	"errors"
	"time"

	"github.com/dreambooster/dreambooster/internal/apply"
	"github.com/dreambooster/dreambooster/internal/listing"
	"github.com/dreambooster/dreambooster/internal/match"
	"github.com/dreambooster/dreambooster/internal/portal"
	"github.com/dreambooster/dreambooster/internal/track"
)

var (
	// ErrRunInProgress is returned when a trigger races an active run.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrNotPreflighted wraps preflight gate violations.
	ErrNotPreflighted = errors.New("run preflight failed")
)

// Run states exposed through Status.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StatePaused  = "paused"
)

// Portal is the slice of the portal client a run needs. The concrete
// *portal.Client satisfies it.
type Portal interface {
	apply.Portal
	Login(ctx context.Context) error
	SessionValid(ctx context.Context) bool
	Search(ctx context.Context, q portal.SearchQuery) ([]listing.Listing, error)
}

// Evaluator decides listing suitability.
type Evaluator interface {
	EvaluateWith(ctx context.Context, l listing.Listing, opts match.EvalOptions) (match.Verdict, error)
}

// Applier walks one application flow end to end.
type Applier interface {
	Apply(ctx context.Context, p apply.Portal, l listing.Listing) (*apply.Outcome, error)
	DryRun(ctx context.Context, p apply.Portal, l listing.Listing) (*apply.Outcome, error)
}

// Ledger records application outcomes.
type Ledger interface {
	Add(ctx context.Context, rec track.Record) error
}

// SeenStore marks evaluated listings so later runs skip them.
type SeenStore interface {
	MarkSeen(ctx context.Context, jobID string) error
}

// AnswerExporter snapshots saved answers to disk after a completed run.
type AnswerExporter interface {
	Export(ctx context.Context, path string) error
}

// CompanyStore records companies that received an application.
type CompanyStore interface {
	RecordApplication(ctx context.Context, company string) error
}

// Breaker guards one portal against repeated failures. Nil-safe via
// noopBreaker.
type Breaker interface {
	Execute(fn func() error) error
	State() string
}

// Options controls one run.
type Options struct {
	// Force re-evaluates listings already marked seen.
	Force bool
	// SkipApply resolves forms but discards before the final submit.
	SkipApply bool
	// Parallelism bounds concurrent listing processing per page,
	// clamped to [1,8]. Zero takes the configured default.
	Parallelism int
}

// Plan is the positions × locations search plan.
type Plan struct {
	Positions []string
	Locations []string
}

// Stats summarizes one finished run.
type Stats struct {
	RunID        string    `json:"run_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	DurationMS   int64     `json:"duration_ms"`
	PagesFetched int       `json:"pages_fetched"`
	JobsSeen     int       `json:"jobs_seen"`
	JobsSuitable int       `json:"jobs_suitable"`
	Applied      int       `json:"applied"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	Errors       []string  `json:"errors,omitempty"`
}

// Status is the runner state exposed over the API.
type Status struct {
	State     string `json:"state"`
	LastRun   *Stats `json:"last_run,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Config tunes run behavior, derived from the operator settings.
type Config struct {
	Plan        Plan
	Parallelism int
	// FastWaits skips the randomized inter-page pause, for tests and
	// supervised runs.
	FastWaits bool
	// MinPageWait/MaxPageWait bound the randomized pause between
	// search pages. Zero values take the defaults.
	MinPageWait time.Duration
	MaxPageWait time.Duration
	// AnswerExportPath is where completed runs snapshot the answer
	// store. Empty disables the export.
	AnswerExportPath string
}

type noopBreaker struct{}

func (noopBreaker) Execute(fn func() error) error { return fn() }
func (noopBreaker) State() string                 { return "closed" }
