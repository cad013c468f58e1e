// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/text/unicode/norm"

	"github.com/dreambooster/dreambooster/internal/log"
	platformfs "github.com/dreambooster/dreambooster/internal/platform/fs"
)

var exportRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dreambooster_export_requests_total",
	Help: "Export file server requests by result",
}, []string{"result"})

// exportsFileServer serves files from the output directory with checks
// against path traversal, symlink escapes, and directory listing. The
// exports hold application records with personal data, so denials are
// logged.
func (s *Server) exportsFileServer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "api")

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			exportRequestsTotal.WithLabelValues("method_not_allowed").Inc()
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		path := r.URL.Path
		// Traversal detection across multiple URL-decode passes, Unicode
		// normalization, and NUL bytes.
		if isPathTraversal(path) {
			logger.Warn().Str("event", "export_req.denied").Str("path", r.URL.Path).Str("reason", "path_escape").Msg("detected traversal sequence")
			exportRequestsTotal.WithLabelValues("path_escape").Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if strings.HasSuffix(path, "/") || path == "" {
			logger.Warn().Str("event", "export_req.denied").Str("path", r.URL.Path).Str("reason", "directory_listing").Msg("directory listing forbidden")
			exportRequestsTotal.WithLabelValues("directory_listing").Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		// Symlink-aware containment of the resolved path within the
		// output directory.
		realPath, err := platformfs.ConfineRelPath(s.config().OutputDir, strings.TrimPrefix(path, "/"))
		if err != nil {
			if os.IsNotExist(err) {
				exportRequestsTotal.WithLabelValues("not_found").Inc()
				http.Error(w, "Not found", http.StatusNotFound)
				return
			}
			logger.Warn().
				Str("event", "export_req.denied").
				Str("path", path).
				Str("reason", "path_escape").
				Err(err).
				Msg("path escapes output directory")
			exportRequestsTotal.WithLabelValues("path_escape").Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		info, err := os.Stat(realPath)
		if err != nil {
			if os.IsNotExist(err) {
				exportRequestsTotal.WithLabelValues("not_found").Inc()
				http.Error(w, "Not found", http.StatusNotFound)
				return
			}
			logger.Error().Err(err).Str("event", "export_req.internal_error").Str("path", realPath).Msg("could not stat real path")
			exportRequestsTotal.WithLabelValues("internal_error").Inc()
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if info.IsDir() {
			logger.Warn().Str("event", "export_req.denied").Str("path", path).Str("reason", "directory_listing").Msg("resolved path is a directory")
			exportRequestsTotal.WithLabelValues("directory_listing").Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		// #nosec G304 -- realPath is confined to the output directory above
		f, err := os.Open(realPath)
		if err != nil {
			logger.Error().Err(err).Str("event", "export_req.internal_error").Str("path", realPath).Msg("could not open file for serving")
			exportRequestsTotal.WithLabelValues("internal_error").Inc()
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := f.Close(); err != nil {
				logger.Warn().Err(err).Str("path", realPath).Msg("failed to close file")
			}
		}()

		info, err = f.Stat()
		if err != nil {
			exportRequestsTotal.WithLabelValues("internal_error").Inc()
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		// Weak ETag from modtime and size is enough for export files.
		etag := fmt.Sprintf(`W/"%x-%x"`, info.ModTime().UnixNano(), info.Size())
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "private, max-age=60")

		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			exportRequestsTotal.WithLabelValues("cache_hit").Inc()
			w.WriteHeader(http.StatusNotModified)
			return
		}

		lowerName := strings.ToLower(info.Name())
		switch {
		case strings.HasSuffix(lowerName, ".json"):
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		case strings.HasSuffix(lowerName, ".csv"):
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		case strings.HasSuffix(lowerName, ".yaml"), strings.HasSuffix(lowerName, ".yml"):
			w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		}

		exportRequestsTotal.WithLabelValues("allowed").Inc()
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

// isPathTraversal performs robust checks against path traversal
// attempts. It decodes the input multiple times to catch
// double-encoding, applies Unicode normalization, and searches for
// dangerous sequences including NULs.
func isPathTraversal(p string) bool {
	decoded := p
	for i := 0; i < 3; i++ {
		prev := decoded
		if d, err := url.PathUnescape(decoded); err == nil {
			decoded = d
		} else if d2, err2 := url.QueryUnescape(decoded); err2 == nil {
			decoded = d2
		}
		if decoded == prev {
			break
		}
	}

	lower := strings.ToLower(decoded)
	dangerSubstrings := []string{
		"..",
		"..\\",
		"%00",
		"%c0%ae",    // overlong UTF-8 for '.'
		"%e0%80%ae", // another overlong variant
	}
	for _, pat := range dangerSubstrings {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	if strings.Contains(decoded, "\x00") {
		return true
	}

	normalized := strings.ToLower(norm.NFC.String(decoded))
	return strings.Contains(normalized, "..")
}
