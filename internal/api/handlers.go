// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/dreambooster/dreambooster/internal/answers"
	"github.com/dreambooster/dreambooster/internal/config"
	"github.com/dreambooster/dreambooster/internal/log"
	"github.com/dreambooster/dreambooster/internal/runs"
	"github.com/dreambooster/dreambooster/internal/track"
	"github.com/dreambooster/dreambooster/internal/version"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500

	idempotencyPrefix = "idem:run:"
	idempotencyTTL    = 24 * time.Hour
)

// StatusResponse is the GET /api/v1/status body.
type StatusResponse struct {
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Run           runs.Status    `json:"run"`
	Applications  map[string]int `json:"applications,omitempty"`
	SavedAnswers  int            `json:"saved_answers"`
}

// RunAccepted is the POST /api/v1/run 202 body. Replays of the same
// Idempotency-Key return the original request ID with Duplicate set.
type RunAccepted struct {
	RequestID openapi_types.UUID `json:"request_id"`
	State     string             `json:"state"`
	Duplicate bool               `json:"duplicate,omitempty"`
}

// runRequest is the optional POST /api/v1/run body.
type runRequest struct {
	Force       *bool `json:"force,omitempty"`
	SkipApply   *bool `json:"skip_apply,omitempty"`
	Parallelism *int  `json:"parallelism,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:       version.String(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Run:           s.deps.Runner.Status(),
	}

	if s.deps.Ledger != nil {
		counts, err := s.deps.Ledger.CountByStatus(r.Context())
		if err != nil {
			log.FromContext(r.Context()).Warn().Err(err).Msg("ledger count query failed")
		} else {
			resp.Applications = counts
		}
	}
	if s.deps.Answers != nil {
		if n, err := s.deps.Answers.Count(r.Context()); err == nil {
			resp.SavedAnswers = n
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	opts := s.runOpts()
	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid request body")
		return
	}
	if body.Force != nil {
		opts.Force = *body.Force
	}
	if body.SkipApply != nil {
		opts.SkipApply = *body.SkipApply
	}
	if body.Parallelism != nil {
		opts.Parallelism = *body.Parallelism
	}

	if s.deps.Runner.Running() {
		writeConflict(w, "run already in progress")
		return
	}

	requestID := uuid.New()

	if key := r.Header.Get("Idempotency-Key"); key != "" && s.deps.Idem != nil {
		stored, replayed, err := s.deps.Idem.Idempotent(r.Context(), idempotencyPrefix+key, requestID.String(), idempotencyTTL)
		if err != nil {
			logger.Error().Err(err).Msg("idempotency record failed")
			writeInternalError(w)
			return
		}
		if replayed {
			prior, err := uuid.Parse(stored)
			if err != nil {
				// Corrupt record: drop the replay claim, run anyway.
				logger.Warn().Str("stored", stored).Msg("unparseable idempotency record")
			} else {
				writeJSON(w, http.StatusAccepted, RunAccepted{
					RequestID: prior,
					State:     "accepted",
					Duplicate: true,
				})
				return
			}
		}
	}

	go func() {
		if _, err := s.deps.Runner.Run(s.runCtx, opts); err != nil {
			switch {
			case errors.Is(err, runs.ErrRunInProgress):
				// Lost the trigger race, the active run carries on.
			default:
				logger := log.WithComponent("api")
				logger.Error().Err(err).Msg("triggered run failed")
			}
		}
	}()

	writeJSON(w, http.StatusAccepted, RunAccepted{
		RequestID: requestID,
		State:     "accepted",
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.deps.Runner.Pause()
	log.FromContext(r.Context()).Info().Str("event", "run.pause_requested").Msg("pause requested")
	writeJSON(w, http.StatusOK, s.deps.Runner.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.deps.Runner.Resume()
	log.FromContext(r.Context()).Info().Str("event", "run.resume_requested").Msg("resume requested")
	writeJSON(w, http.StatusOK, s.deps.Runner.Status())
}

func (s *Server) handleApplications(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return
	}

	limit := defaultQueryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	status := r.URL.Query().Get("status")
	switch status {
	case "", track.StatusApplied, track.StatusSkipped, track.StatusFailed:
	default:
		writeBadRequest(w, "unknown status")
		return
	}

	var (
		records []track.Record
		err     error
	)
	if status != "" {
		records, err = s.deps.Ledger.ByStatus(r.Context(), status, limit)
	} else {
		records, err = s.deps.Ledger.Recent(r.Context(), limit)
	}
	if err != nil {
		log.FromContext(r.Context()).Error().Err(err).Msg("ledger query failed")
		writeInternalError(w)
		return
	}
	if records == nil {
		records = []track.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":        len(records),
		"applications": records,
	})
}

func (s *Server) handleAnswersList(w http.ResponseWriter, r *http.Request) {
	if s.deps.Answers == nil {
		writeError(w, http.StatusServiceUnavailable, "answer store unavailable")
		return
	}

	list, err := s.deps.Answers.List(r.Context())
	if err != nil {
		log.FromContext(r.Context()).Error().Err(err).Msg("answer list failed")
		writeInternalError(w)
		return
	}
	if list == nil {
		list = []answers.Answer{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(list),
		"answers": list,
	})
}

func (s *Server) handleAnswerDelete(w http.ResponseWriter, r *http.Request) {
	if s.deps.Answers == nil {
		writeError(w, http.StatusServiceUnavailable, "answer store unavailable")
		return
	}

	key := chi.URLParam(r, "key")
	if key == "" {
		writeBadRequest(w, "missing answer key")
		return
	}

	removed, err := s.deps.Answers.Remove(r.Context(), key)
	if err != nil {
		log.FromContext(r.Context()).Error().Err(err).Str("key", key).Msg("answer delete failed")
		writeInternalError(w)
		return
	}
	if !removed {
		writeNotFound(w)
		return
	}

	log.FromContext(r.Context()).Info().Str("event", "answers.deleted").Str("key", key).Msg("saved answer removed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.MaskSecrets(s.config()))
}
