// SPDX-License-Identifier: MIT

// Package auth holds the API token extraction and comparison rules
// shared by every authenticated surface.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// SessionCookie is the HTTP-only cookie issued by the session endpoint.
const SessionCookie = "dream_session"

// ExtractToken retrieves the API token from the request, in order:
//  1. Authorization: Bearer <token>
//  2. Cookie: dream_session
//  3. Header: X-API-Token
func ExtractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}

	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}

	return r.Header.Get("X-API-Token")
}

// AuthorizeToken reports whether got matches expected using a
// constant-time comparison. Empty tokens never authorize.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// AuthorizeRequest extracts a token from r and validates it against
// expected.
func AuthorizeRequest(r *http.Request, expected string) bool {
	if r == nil {
		return false
	}
	return AuthorizeToken(ExtractToken(r), expected)
}
