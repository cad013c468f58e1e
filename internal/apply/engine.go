// SPDX-License-Identifier: MIT

// Package apply drives one job application end to end: description,
// form, answers, upload, submit.
package apply

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dreambooster/dreambooster/internal/answers"
	"github.com/dreambooster/dreambooster/internal/cache"
	"github.com/dreambooster/dreambooster/internal/config"
	"github.com/dreambooster/dreambooster/internal/listing"
	"github.com/dreambooster/dreambooster/internal/llm"
	"github.com/dreambooster/dreambooster/internal/log"
	"github.com/dreambooster/dreambooster/internal/metrics"
	platformfs "github.com/dreambooster/dreambooster/internal/platform/fs"
	"github.com/dreambooster/dreambooster/internal/portal"
)

// SkipReasonEnv marks listings skipped because DREAM_SKIP_APPLY is set.
const SkipReasonEnv = "skip_apply_env"

const (
	skipApplyEnv = "DREAM_SKIP_APPLY"

	defaultMaxAttempts = 3
	defaultRetryWait   = 2 * time.Second

	// Forms are short; a flow that keeps growing is a portal loop.
	maxFormSteps = 25

	summaryTTL = 24 * time.Hour
)

// Portal is the slice of the portal client one application needs.
type Portal interface {
	Name() string
	FetchDescription(ctx context.Context, l listing.Listing) (string, error)
	FetchApplicantCount(ctx context.Context, l listing.Listing) (int, error)
	FetchForm(ctx context.Context, l listing.Listing) (*portal.Form, error)
	SubmitStep(ctx context.Context, l listing.Listing, step int, answers map[string]string) (*portal.StepResult, error)
	UploadResume(ctx context.Context, l listing.Listing, path string) error
	Discard(ctx context.Context, l listing.Listing) error
}

// AnswerStore is the saved-answer lookaside consulted before the model.
type AnswerStore interface {
	Lookup(ctx context.Context, kind, question string, options []string) (answers.Answer, bool, error)
	Record(ctx context.Context, kind, question, answer string) error
}

// Generator produces answers and summaries when the store has none.
type Generator interface {
	GenerateAnswer(ctx context.Context, q llm.Question, job string) (string, error)
	SummarizeDescription(ctx context.Context, description string) (string, error)
}

// Config holds the per-engine application settings.
type Config struct {
	// ResumePath is the PDF handed to upload fields. Empty skips
	// optional uploads and fails required ones.
	ResumePath string
	// Summarize caches an LLM summary of each description and feeds
	// it into answer prompts.
	Summarize bool
	// MaxAttempts bounds whole-flow retries per listing.
	MaxAttempts int
	// RetryWait is the base pause between attempts, jittered up to
	// 2.5x so retries do not land in lockstep.
	RetryWait time.Duration
}

// Deps holds the collaborators an Engine needs.
type Deps struct {
	Answers   AnswerStore
	Generator Generator
	Cache     cache.Cache
	Config    Config
}

// Outcome reports one finished application flow.
type Outcome struct {
	// Listing is the input enriched with description, summary and
	// applicant count as discovered during the flow.
	Listing listing.Listing
	// Skipped is true for dry runs that stopped before the final
	// submit.
	Skipped bool
	Reason  string
	// Answers maps field labels to the values given, resume uploads
	// included.
	Answers  map[string]string
	Attempts int
}

// Engine applies to listings on behalf of one candidate profile.
type Engine struct {
	answers AnswerStore
	gen     Generator
	cache   cache.Cache
	cfg     Config

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// New validates deps and applies defaults.
func New(deps Deps) (*Engine, error) {
	if deps.Answers == nil {
		return nil, fmt.Errorf("apply: answer store is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("apply: answer generator is required")
	}
	c := deps.Cache
	if c == nil {
		c = cache.NewNoOpCache()
	}
	cfg := deps.Config
	if cfg.ResumePath != "" {
		if err := platformfs.IsRegularFile(cfg.ResumePath); err != nil {
			return nil, fmt.Errorf("apply: resume: %w", err)
		}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}
	return &Engine{
		answers: deps.Answers,
		gen:     deps.Generator,
		cache:   c,
		cfg:     cfg,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Apply runs the full application flow for one listing, retrying the
// whole flow on failure with a fresh form each attempt. A dry run
// (DREAM_SKIP_APPLY) resolves every field, then discards before the
// final submit and reports the listing as skipped.
func (e *Engine) Apply(ctx context.Context, p Portal, l listing.Listing) (*Outcome, error) {
	return e.run(ctx, p, l, e.skipApply())
}

// DryRun applies like Apply but always stops before the final submit,
// regardless of DREAM_SKIP_APPLY.
func (e *Engine) DryRun(ctx context.Context, p Portal, l listing.Listing) (*Outcome, error) {
	return e.run(ctx, p, l, true)
}

func (e *Engine) run(ctx context.Context, p Portal, l listing.Listing, dry bool) (*Outcome, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	tracer := otel.GetTracerProvider().Tracer("dreambooster.apply")
	ctx, span := tracer.Start(ctx, "dreambooster.apply.listing", trace.WithAttributes(
		attribute.String("dreambooster.portal", p.Name()),
		attribute.String("dreambooster.job.id", l.ID),
	))
	defer span.End()

	logger := log.WithComponentFromContext(ctx, "apply")

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepWithContext(ctx, e.retryWait()); err != nil {
				return nil, err
			}
		}

		out, err := e.applyOnce(ctx, p, l, dry)
		if err == nil {
			out.Attempts = attempt
			event := "apply.success"
			if out.Skipped {
				event = "apply.dry_run"
			}
			logger.Info().
				Str("event", event).
				Str("portal", p.Name()).
				Str("jobId", l.ID).
				Int("attempt", attempt).
				Msg("application flow finished")
			return out, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
		logger.Warn().
			Err(err).
			Str("event", "apply.attempt_failed").
			Str("portal", p.Name()).
			Str("jobId", l.ID).
			Int("attempt", attempt).
			Msg("application attempt failed")
	}

	err := fmt.Errorf("apply to %s at %s failed after %d attempts: %w", l.Title, l.Company, e.cfg.MaxAttempts, lastErr)
	span.RecordError(err)
	return nil, err
}

// applyOnce runs a single attempt from description to final submit.
func (e *Engine) applyOnce(ctx context.Context, p Portal, l listing.Listing, dry bool) (*Outcome, error) {
	logger := log.WithComponentFromContext(ctx, "apply")

	raw, err := p.FetchDescription(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("fetch description: %w", err)
	}
	l.Description = sanitizeDescription(raw)
	if e.cfg.Summarize && l.Description != "" {
		l.SummarizedDescription = e.summarize(ctx, l)
	}

	if n, err := p.FetchApplicantCount(ctx, l); err != nil {
		logger.Warn().Err(err).Str("jobId", l.ID).Msg("applicant count unavailable")
	} else if n >= 0 {
		l.ApplicantCount = n
	}

	form, err := p.FetchForm(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("fetch form: %w", err)
	}
	if len(form.Steps) == 0 {
		return nil, fmt.Errorf("listing %s: form has no steps", l.ID)
	}

	jobContext := l.Markdown()
	given := make(map[string]string)
	steps := append([]portal.FormStep(nil), form.Steps...)

	for i := 0; i < len(steps); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i == maxFormSteps {
			e.discard(ctx, p, l)
			return nil, fmt.Errorf("listing %s: form exceeded %d steps", l.ID, maxFormSteps)
		}

		stepAnswers, err := e.resolveStep(ctx, p, l, steps[i], jobContext, given)
		if err != nil {
			e.discard(ctx, p, l)
			return nil, err
		}

		if i == len(steps)-1 && dry {
			e.discard(ctx, p, l)
			return &Outcome{Listing: l, Skipped: true, Reason: SkipReasonEnv, Answers: given}, nil
		}

		res, err := p.SubmitStep(ctx, l, i, stepAnswers)
		if err != nil {
			e.discard(ctx, p, l)
			return nil, fmt.Errorf("submit step %d: %w", i, err)
		}
		if res.Done {
			return &Outcome{Listing: l, Answers: given}, nil
		}
		if res.Next != nil {
			if i+1 < len(steps) {
				steps[i+1] = *res.Next
			} else {
				steps = append(steps, *res.Next)
			}
		}
	}

	e.discard(ctx, p, l)
	return nil, fmt.Errorf("listing %s: form never reported completion", l.ID)
}

// resolveStep produces the answer payload for one step, keyed by field
// ID. Uploads go out immediately and do not appear in the payload.
func (e *Engine) resolveStep(ctx context.Context, p Portal, l listing.Listing, step portal.FormStep, jobContext string, given map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(step.Fields))
	for _, f := range step.Fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.Kind == portal.FieldUpload {
			if err := e.handleUpload(ctx, p, l, f, given); err != nil {
				return nil, err
			}
			continue
		}

		answer, err := e.resolveField(ctx, f, jobContext)
		if err != nil {
			return nil, err
		}
		if answer == "" {
			if f.Required {
				return nil, fmt.Errorf("no answer for required field %q", f.Label)
			}
			continue
		}
		out[f.ID] = answer
		given[f.Label] = answer
	}
	return out, nil
}

// resolveField answers one question, saved answers first, model second.
func (e *Engine) resolveField(ctx context.Context, f portal.FormField, jobContext string) (string, error) {
	switch f.Kind {
	case portal.FieldText, portal.FieldTextarea, portal.FieldNumeric,
		portal.FieldDropdown, portal.FieldRadio, portal.FieldCheckbox:
	default:
		return "", fmt.Errorf("unknown field kind %q for %q", f.Kind, f.Label)
	}

	saved, found, err := e.answers.Lookup(ctx, f.Kind, f.Label, f.Options)
	if err != nil {
		return "", fmt.Errorf("lookup answer for %q: %w", f.Label, err)
	}
	if found {
		metrics.IncAnswer("saved")
		return saved.Answer, nil
	}

	generated, err := e.gen.GenerateAnswer(ctx, llm.Question{Text: f.Label, Kind: f.Kind, Options: f.Options}, jobContext)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if f.Required {
			return "", fmt.Errorf("generate answer for required field %q: %w", f.Label, err)
		}
		logger := log.WithComponentFromContext(ctx, "apply")
		logger.Warn().
			Err(err).
			Str("question", f.Label).
			Msg("leaving optional field blank")
		return "", nil
	}
	metrics.IncAnswer("generated")

	if err := e.answers.Record(ctx, f.Kind, f.Label, generated); err != nil {
		logger := log.WithComponentFromContext(ctx, "apply")
		logger.Warn().
			Err(err).
			Str("question", f.Label).
			Msg("generated answer not saved")
	}
	return generated, nil
}

// handleUpload sends the configured resume for an upload field.
func (e *Engine) handleUpload(ctx context.Context, p Portal, l listing.Listing, f portal.FormField, given map[string]string) error {
	if e.cfg.ResumePath == "" {
		if f.Required {
			return fmt.Errorf("field %q needs a resume document and none is configured", f.Label)
		}
		logger := log.WithComponentFromContext(ctx, "apply")
		logger.Warn().
			Str("field", f.Label).
			Msg("no resume configured, skipping upload")
		return nil
	}
	if err := p.UploadResume(ctx, l, e.cfg.ResumePath); err != nil {
		return fmt.Errorf("upload resume for %q: %w", f.Label, err)
	}
	given[f.Label] = filepath.Base(e.cfg.ResumePath)
	return nil
}

// summarize returns the cached description summary, generating and
// caching it on first sight of the listing. Summaries are best-effort
// and never fail the flow.
func (e *Engine) summarize(ctx context.Context, l listing.Listing) string {
	key := "summary:" + l.ID
	if v, ok := e.cache.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	s, err := e.gen.SummarizeDescription(ctx, l.Description)
	if err != nil {
		logger := log.WithComponentFromContext(ctx, "apply")
		logger.Warn().
			Err(err).
			Str("jobId", l.ID).
			Msg("description summary unavailable")
		return ""
	}
	e.cache.Set(key, s, summaryTTL)
	return s
}

// discard abandons a half-filled draft. It runs detached from the
// caller's cancellation so cleanup still reaches the portal.
func (e *Engine) discard(ctx context.Context, p Portal, l listing.Listing) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.Discard(dctx, l); err != nil {
		logger := log.WithComponentFromContext(ctx, "apply")
		logger.Warn().
			Err(err).
			Str("jobId", l.ID).
			Msg("discard failed")
	}
}

func (e *Engine) skipApply() bool {
	return config.ParseBool(skipApplyEnv, false)
}

func (e *Engine) retryWait() time.Duration {
	base := e.cfg.RetryWait
	return base + time.Duration(e.randInt63n(int64(base)*3/2+1))
}

func (e *Engine) randInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	e.rndMu.Lock()
	defer e.rndMu.Unlock()
	return e.rnd.Int63n(n)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
