// SPDX-License-Identifier: MIT

// Package answers persists form answers that were used in a successful
// application so later forms asking the same question reuse them instead
// of asking the model again.
package answers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/dreambooster/dreambooster/internal/metrics"
	"github.com/dreambooster/dreambooster/internal/normalize"
	"github.com/dreambooster/dreambooster/internal/state"
)

const keyPrefix = "ans:"

// Answer is one saved answer.
type Answer struct {
	Key       string    `json:"key"`
	Question  string    `json:"question"`
	Kind      string    `json:"kind"`
	Answer    string    `json:"answer"`
	UsedCount int       `json:"used_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key derives the store key for a field kind and question. The question
// is normalized so wording variants share one entry.
func Key(kind, question string) string {
	q := strings.ReplaceAll(normalize.Question(question), " ", "-")
	return strings.TrimSpace(kind) + ":" + q
}

// Store reads and writes saved answers.
type Store struct {
	st *state.Store
}

// New wraps the shared state store.
func New(st *state.Store) *Store { return &Store{st: st} }

// Lookup returns the saved answer for a question, exact key matches
// only. For option-bound kinds the saved answer must still be one of the
// offered options; a stale option counts as a miss.
func (s *Store) Lookup(ctx context.Context, kind, question string, options []string) (Answer, bool, error) {
	raw, found, err := s.st.Get(ctx, keyPrefix+Key(kind, question))
	if err != nil {
		return Answer{}, false, err
	}
	if !found {
		metrics.IncAnswerLookup("miss")
		return Answer{}, false, nil
	}

	var a Answer
	if err := json.Unmarshal(raw, &a); err != nil {
		return Answer{}, false, fmt.Errorf("decode saved answer: %w", err)
	}
	if optionBound(kind) && len(options) > 0 && !optionOffered(a.Answer, options) {
		metrics.IncAnswerLookup("drift")
		return Answer{}, false, nil
	}

	metrics.IncAnswerLookup("hit")
	return a, true, nil
}

// Record stores an answer after a successful submit. Repeats overwrite
// the answer and bump the use counter.
func (s *Store) Record(ctx context.Context, kind, question, answer string) error {
	kind = strings.TrimSpace(kind)
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if kind == "" || question == "" || answer == "" {
		return fmt.Errorf("answer record needs kind, question, and answer")
	}

	key := Key(kind, question)
	return s.st.Update(ctx, keyPrefix+key, func(val []byte, found bool) ([]byte, error) {
		a := Answer{Key: key, Question: question, Kind: kind}
		if found {
			if err := json.Unmarshal(val, &a); err != nil {
				return nil, fmt.Errorf("decode saved answer: %w", err)
			}
		}
		a.Answer = answer
		a.UsedCount++
		a.UpdatedAt = time.Now().UTC()
		return json.Marshal(a)
	})
}

// Remove drops one saved answer by its store key and reports whether it
// existed.
func (s *Store) Remove(ctx context.Context, key string) (bool, error) {
	found, err := s.st.Has(ctx, keyPrefix+key)
	if err != nil || !found {
		return false, err
	}
	return true, s.st.Delete(ctx, keyPrefix+key)
}

// List returns all saved answers in key order. Entries that no longer
// decode are skipped.
func (s *Store) List(ctx context.Context) ([]Answer, error) {
	var all []Answer
	err := s.st.ScanPrefix(ctx, keyPrefix, func(key string, val []byte) error {
		var a Answer
		if err := json.Unmarshal(val, &a); err != nil {
			return nil
		}
		all = append(all, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// Count returns the number of saved answers.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.st.CountPrefix(ctx, keyPrefix)
}

// Export writes every saved answer to path as JSON, atomically.
func (s *Store) Export(ctx context.Context, path string) error {
	all, err := s.List(ctx)
	if err != nil {
		return err
	}
	if all == nil {
		all = []Answer{}
	}
	buf, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	buf = append(buf, '\n')
	if err := renameio.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("export answers: %w", err)
	}
	return nil
}

// optionBound reports whether the field kind restricts answers to the
// form's option list.
func optionBound(kind string) bool {
	switch kind {
	case "dropdown", "radio", "checkbox":
		return true
	}
	return false
}

func optionOffered(answer string, options []string) bool {
	folded := normalize.Fold(strings.TrimSpace(answer))
	for _, opt := range options {
		if normalize.Fold(strings.TrimSpace(opt)) == folded {
			return true
		}
	}
	return false
}
