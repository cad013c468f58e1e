// SPDX-License-Identifier: MIT

// Package match decides whether a discovered listing is worth applying to.
// Rules run in a fixed order and the first failing rule wins; reason
// strings are stable and surface in the tracking ledger and metrics.
package match

import (
	"context"
	"fmt"

	"github.com/dreambooster/dreambooster/internal/listing"
	"github.com/dreambooster/dreambooster/internal/log"
	"github.com/dreambooster/dreambooster/internal/normalize"
	"github.com/rs/zerolog"
)

// Stable rejection reasons. These values appear in application records,
// API responses, and metric labels. Do not rename.
const (
	ReasonTitleBlacklist       = "title_blacklist"
	ReasonCompanyBlacklist     = "company_blacklist"
	ReasonSeen                 = "seen"
	ReasonCompanyApplied       = "company_applied"
	ReasonApplicantsOutOfRange = "applicants_out_of_range"
	ReasonLowMatchScore        = "low_match_score"
)

// Verdict is the outcome of evaluating one listing.
type Verdict struct {
	Suitable bool    `json:"suitable"`
	Reason   string  `json:"reason,omitempty"`
	Score    float64 `json:"score"`
}

// Config carries the evaluation rules derived from the operator settings.
type Config struct {
	TitleBlacklist     []string
	CompanyBlacklist   []string
	ApplyOnceAtCompany bool
	MinApplicants      int
	MaxApplicants      int
	MatchThreshold     float64
	Keywords           []string
	TitleOnly          bool // exclude descriptions from keyword matching
}

// SeenStore answers whether a listing ID was evaluated before.
type SeenStore interface {
	Seen(ctx context.Context, id string) (bool, error)
}

// CompanyLedger answers whether a company already received an application.
type CompanyLedger interface {
	HasApplication(ctx context.Context, company string) (bool, error)
}

// Evaluator applies the suitability rules.
type Evaluator struct {
	cfg       Config
	seen      SeenStore
	companies CompanyLedger
	logger    zerolog.Logger
}

// NewEvaluator builds an evaluator over the given stores.
func NewEvaluator(cfg Config, seen SeenStore, companies CompanyLedger) *Evaluator {
	return &Evaluator{
		cfg:       cfg,
		seen:      seen,
		companies: companies,
		logger:    log.WithComponent("match"),
	}
}

// EvalOptions tunes one evaluation.
type EvalOptions struct {
	// IgnoreSeen re-evaluates listings already marked seen, for forced
	// runs.
	IgnoreSeen bool
}

// Evaluate runs the rules against one listing. Store errors abort the
// evaluation; they signal a broken state store, not an unsuitable listing.
func (e *Evaluator) Evaluate(ctx context.Context, l listing.Listing) (Verdict, error) {
	return e.EvaluateWith(ctx, l, EvalOptions{})
}

// EvaluateWith is Evaluate with per-call options.
func (e *Evaluator) EvaluateWith(ctx context.Context, l listing.Listing, opts EvalOptions) (Verdict, error) {
	v, err := e.evaluate(ctx, l, opts)
	if err != nil {
		return v, err
	}
	EmitVerdictObs(ctx, l.Portal, v)

	evt := e.logger.Debug().
		Str(log.FieldListingID, l.ID).
		Str(log.FieldPortal, l.Portal).
		Bool("suitable", v.Suitable).
		Float64(log.FieldScore, v.Score)
	if v.Reason != "" {
		evt = evt.Str(log.FieldReason, v.Reason)
	}
	evt.Msg("listing evaluated")

	return v, nil
}

func (e *Evaluator) evaluate(ctx context.Context, l listing.Listing, opts EvalOptions) (Verdict, error) {
	for _, word := range e.cfg.TitleBlacklist {
		if containsWholeWord(l.Title, word) {
			return Verdict{Reason: ReasonTitleBlacklist}, nil
		}
	}

	company := normalize.Company(l.Company)
	for _, blocked := range e.cfg.CompanyBlacklist {
		if company != "" && company == normalize.Company(blocked) {
			return Verdict{Reason: ReasonCompanyBlacklist}, nil
		}
	}

	if !opts.IgnoreSeen {
		seen, err := e.seen.Seen(ctx, l.ID)
		if err != nil {
			return Verdict{}, fmt.Errorf("seen check: %w", err)
		}
		if seen {
			return Verdict{Reason: ReasonSeen}, nil
		}
	}

	if e.cfg.ApplyOnceAtCompany {
		applied, err := e.companies.HasApplication(ctx, company)
		if err != nil {
			return Verdict{}, fmt.Errorf("company ledger check: %w", err)
		}
		if applied {
			return Verdict{Reason: ReasonCompanyApplied}, nil
		}
	}

	if l.ApplicantCount != listing.ApplicantCountUnknown {
		if l.ApplicantCount < e.cfg.MinApplicants || l.ApplicantCount > e.cfg.MaxApplicants {
			return Verdict{Reason: ReasonApplicantsOutOfRange}, nil
		}
	}

	score := e.score(l)
	if score < e.cfg.MatchThreshold {
		return Verdict{Reason: ReasonLowMatchScore, Score: score}, nil
	}

	return Verdict{Suitable: true, Score: score}, nil
}
