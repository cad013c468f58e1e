// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dreambooster/dreambooster/internal/auth"
	"github.com/dreambooster/dreambooster/internal/log"
)

// authMiddleware enforces API token authentication. Without a
// configured token the API fails closed unless anonymous access was
// explicitly enabled.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.config()

		if cfg.APIToken == "" {
			if cfg.AuthAnonymous {
				next.ServeHTTP(w, r)
				return
			}
			log.FromContext(r.Context()).Error().
				Str("event", "auth.fail_closed").
				Msg("DREAM_API_TOKEN not set and DREAM_AUTH_ANONYMOUS!=true, denying access")
			writeUnauthorized(w)
			return
		}

		reqToken := auth.ExtractToken(r)
		logger := log.FromContext(r.Context()).With().Str("component", "auth").Logger()

		if reqToken == "" {
			logger.Warn().Str("event", "auth.missing_token").Msg("authorization header/cookie missing")
			writeUnauthorized(w)
			return
		}

		if !auth.AuthorizeToken(reqToken, cfg.APIToken) {
			logger.Warn().Str("event", "auth.invalid_token").Msg("invalid api token")
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleSessionLogin exchanges a validated Bearer token for an
// HTTP-only session cookie so the dashboard works without storing the
// token in browser-accessible state.
func (s *Server) handleSessionLogin(w http.ResponseWriter, r *http.Request) {
	// authMiddleware already validated the token against the config.
	token := auth.ExtractToken(r)
	if token == "" {
		// Anonymous mode: nothing to exchange.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	secure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int((24 * time.Hour).Seconds()),
	})

	log.FromContext(r.Context()).Info().
		Str("event", "auth.session_issued").
		Bool("secure_cookie", secure).
		Msg("session cookie issued")

	w.WriteHeader(http.StatusNoContent)
}
