// SPDX-License-Identifier: MIT
package track

import (
	"context"
	"strconv"
	"time"

	"github.com/dreambooster/dreambooster/internal/normalize"
	"github.com/dreambooster/dreambooster/internal/state"
)

const (
	seenPrefix    = "seen:"
	companyPrefix = "comp:"
)

// SeenStore records every listing the daemon has already evaluated so a
// later page or run does not process it twice.
type SeenStore struct {
	st *state.Store
}

// NewSeenStore wraps the shared state store.
func NewSeenStore(st *state.Store) *SeenStore { return &SeenStore{st: st} }

// MarkSeen records a listing ID.
func (s *SeenStore) MarkSeen(ctx context.Context, jobID string) error {
	return s.st.Set(ctx, seenPrefix+jobID, []byte(strconv.FormatInt(time.Now().Unix(), 10)))
}

// Seen reports whether a listing ID was evaluated before.
func (s *SeenStore) Seen(ctx context.Context, jobID string) (bool, error) {
	return s.st.Has(ctx, seenPrefix+jobID)
}

// Count returns the number of seen listings.
func (s *SeenStore) Count(ctx context.Context) (int, error) {
	return s.st.CountPrefix(ctx, seenPrefix)
}

// CompanyStore records companies that already received an application,
// backing the apply-once-per-company rule.
type CompanyStore struct {
	st *state.Store
}

// NewCompanyStore wraps the shared state store.
func NewCompanyStore(st *state.Store) *CompanyStore { return &CompanyStore{st: st} }

// RecordApplication marks a company as applied to. Name variants collapse
// to one key.
func (s *CompanyStore) RecordApplication(ctx context.Context, company string) error {
	key := normalize.Company(company)
	if key == "" {
		return nil
	}
	return s.st.Set(ctx, companyPrefix+key, []byte(strconv.FormatInt(time.Now().Unix(), 10)))
}

// HasApplication reports whether the company already got an application.
func (s *CompanyStore) HasApplication(ctx context.Context, company string) (bool, error) {
	key := normalize.Company(company)
	if key == "" {
		return false, nil
	}
	return s.st.Has(ctx, companyPrefix+key)
}
