// SPDX-License-Identifier: MIT

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractToken_PriorityOrder(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/test", nil)
	r.Header.Set("Authorization", "Bearer bearer-token ")
	r.Header.Set("X-API-Token", "header-token")
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "session-token"})

	if got := ExtractToken(r); got != "bearer-token" {
		t.Fatalf("ExtractToken() = %q, want %q", got, "bearer-token")
	}
}

func TestExtractToken_CookieBeforeHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/test", nil)
	r.Header.Set("X-API-Token", "header-token")
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "session-token"})

	if got := ExtractToken(r); got != "session-token" {
		t.Fatalf("ExtractToken() = %q, want %q", got, "session-token")
	}
}

func TestExtractToken_LegacyHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/test", nil)
	r.Header.Set("X-API-Token", "header-token")

	if got := ExtractToken(r); got != "header-token" {
		t.Fatalf("ExtractToken() = %q, want %q", got, "header-token")
	}
}

func TestExtractToken_Empty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/test?token=query", nil)

	// Query parameters never authenticate.
	if got := ExtractToken(r); got != "" {
		t.Fatalf("ExtractToken() = %q, want empty", got)
	}
}

func TestAuthorizeToken(t *testing.T) {
	if AuthorizeToken("secret", "secret") != true {
		t.Fatal("AuthorizeToken should accept exact match")
	}
	if AuthorizeToken("secret", "other") != false {
		t.Fatal("AuthorizeToken should reject mismatch")
	}
	if AuthorizeToken("", "secret") != false {
		t.Fatal("AuthorizeToken should reject empty got token")
	}
	if AuthorizeToken("secret", "") != false {
		t.Fatal("AuthorizeToken should reject empty expected token")
	}
	if AuthorizeToken("x", "   ") != false {
		t.Fatal("AuthorizeToken should reject whitespace expected token")
	}
}

func TestAuthorizeRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/test", nil)
	r.Header.Set("Authorization", "Bearer secret")
	if !AuthorizeRequest(r, "secret") {
		t.Fatal("AuthorizeRequest should accept bearer token")
	}

	r2 := httptest.NewRequest(http.MethodGet, "http://example.local/test", nil)
	if AuthorizeRequest(r2, "secret") {
		t.Fatal("AuthorizeRequest should reject missing token")
	}

	if AuthorizeRequest(nil, "secret") {
		t.Fatal("AuthorizeRequest should reject nil request")
	}
}
