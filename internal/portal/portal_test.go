// SPDX-License-Identifier: MIT
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	netpolicy "github.com/dreambooster/dreambooster/internal/platform/net"
)

func testEndpoints(baseURL string) Endpoints {
	return Endpoints{
		BaseURL:           baseURL,
		LoginPath:         "/login",
		FeedPath:          "/feed",
		SearchPath:        "/search",
		ProfilePath:       "/profile",
		SecurityCheckPath: "/checkpoint",
	}
}

func testOptions() Options {
	return Options{
		RateLimit:      rate.Limit(1000),
		RateLimitBurst: 1000,
		MaxRetries:     2,
		Backoff:        time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func newTestPortal(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New("linkhub", testEndpoints(srv.URL), Credentials{Username: "ada", Password: "s3cret"}, testOptions())
	require.NoError(t, err)
	return c
}

func TestNewRequiresName(t *testing.T) {
	_, err := New("  ", testEndpoints("https://portal.example"), Credentials{}, testOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, base := range []string{"", "portal.example", "ftp://portal.example", "https://"} {
		_, err := New("linkhub", testEndpoints(base), Credentials{}, testOptions())
		require.Error(t, err, "base %q", base)
		assert.Contains(t, err.Error(), "invalid base url")
	}
}

func TestNewOutboundPolicyRejects(t *testing.T) {
	opts := testOptions()
	opts.Policy = &netpolicy.OutboundPolicy{
		Enabled: true,
		Allow:   netpolicy.OutboundAllowlist{Hosts: []string{"portal.example"}, Schemes: []string{"https"}},
	}

	_, err := New("linkhub", testEndpoints("http://127.0.0.1:9"), Credentials{}, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outbound policy rejected base url")
}

func TestNewOutboundPolicyAllows(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	opts := testOptions()
	opts.Policy = &netpolicy.OutboundPolicy{
		Enabled: true,
		Allow: netpolicy.OutboundAllowlist{
			CIDRs:   []string{"127.0.0.0/8"},
			Ports:   []int{port},
			Schemes: []string{"http"},
		},
	}

	c, err := New("linkhub", testEndpoints(srv.URL), Credentials{}, opts)
	require.NoError(t, err)
	assert.Equal(t, "linkhub", c.Name())
}

func TestLoginSuccessKeepsSessionCookie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada", body["username"])
		assert.Equal(t, "s3cret", body["password"])

		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123", Path: "/"})
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil || cookie.Value != "abc123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{}`)
	})

	c := newTestPortal(t, mux)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx))
	assert.True(t, c.SessionValid(ctx))
}

func TestLoginForbiddenIsSecurityCheck(t *testing.T) {
	c := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	err := c.Login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSecurityCheck)
	assert.Contains(t, err.Error(), "login forbidden")
}

func TestLoginRedirectToCheckpoint(t *testing.T) {
	c := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/checkpoint/challenge?flow=login")
		w.WriteHeader(http.StatusFound)
	}))

	err := c.Login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSecurityCheck)
}

func TestLoginRejectedCredentials(t *testing.T) {
	c := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := c.Login(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSecurityCheck)
	assert.Contains(t, err.Error(), "login rejected")
}

func TestLoginPathNotConfigured(t *testing.T) {
	eps := testEndpoints("https://portal.example")
	eps.LoginPath = ""
	c, err := New("linkhub", eps, Credentials{}, testOptions())
	require.NoError(t, err)

	err = c.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login path not configured")
}

func TestSessionValidWithoutProfilePath(t *testing.T) {
	eps := testEndpoints("https://portal.example")
	eps.ProfilePath = ""
	c, err := New("linkhub", eps, Credentials{}, testOptions())
	require.NoError(t, err)

	assert.False(t, c.SessionValid(context.Background()))
}

func TestSessionValidExpired(t *testing.T) {
	c := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	assert.False(t, c.SessionValid(context.Background()))
}

func TestRetryOnServerErrorThenSuccess(t *testing.T) {
	var calls atomic.Int32
	c := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"jobs": [{"title": "Go Developer", "company": "Initech", "location": "Berlin", "link": "https://jobs.example/1"}]}`)
	}))

	listings, err := c.Search(context.Background(), SearchQuery{Position: "Go Developer", Location: "Berlin"})
	require.NoError(t, err)
	assert.Len(t, listings, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.Search(context.Background(), SearchQuery{Position: "Go Developer", Location: "Berlin"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRequestHeaders(t *testing.T) {
	var gotUA, gotAccept string
	c := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		fmt.Fprint(w, `{"jobs": []}`)
	}))

	_, err := c.Search(context.Background(), SearchQuery{Position: "Go Developer", Location: "Berlin"})
	require.NoError(t, err)
	assert.Contains(t, gotUA, "dreambooster/")
	assert.Equal(t, "application/json", gotAccept)
}

func TestUnexpectedRedirect(t *testing.T) {
	c := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/somewhere-else")
		w.WriteHeader(http.StatusMovedPermanently)
	}))

	_, err := c.Search(context.Background(), SearchQuery{Position: "Go Developer", Location: "Berlin"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSecurityCheck)
	assert.NotErrorIs(t, err, ErrPremiumRedirect)
	assert.Contains(t, err.Error(), "unexpected redirect")
}

func TestContextCancelledStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.Search(ctx, SearchQuery{Position: "Go Developer", Location: "Berlin"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffStaysBounded(t *testing.T) {
	c, err := New("linkhub", testEndpoints("https://portal.example"), Credentials{}, Options{
		Backoff:    10 * time.Millisecond,
		MaxBackoff: 40 * time.Millisecond,
	})
	require.NoError(t, err)

	upper := c.maxBackoff + c.maxBackoff/5
	for attempt := 0; attempt < 10; attempt++ {
		wait := c.backoffFor(attempt)
		assert.GreaterOrEqual(t, wait, c.backoff)
		assert.LessOrEqual(t, wait, upper)
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Op: "search", Code: 418}
	assert.Equal(t, "portal search: status 418", err.Error())
}
