// SPDX-License-Identifier: MIT

// Package portal adapts one configured job portal's JSON API: session
// login, security-check detection, paginated search, and the multi-step
// application form verbs. Listing-scoped resources hang off the listing
// link (link/description, link/applicants, link/apply), search and feed
// off the configured portal paths.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/dreambooster/dreambooster/internal/log"
	"github.com/dreambooster/dreambooster/internal/metrics"
	netpolicy "github.com/dreambooster/dreambooster/internal/platform/net"
	"github.com/dreambooster/dreambooster/internal/telemetry"
	"github.com/dreambooster/dreambooster/internal/version"
)

var (
	// ErrSecurityCheck means the portal demands a manual checkpoint. The
	// run skips this portal until the operator resolves it.
	ErrSecurityCheck = errors.New("portal security check required")

	// ErrUnavailable wraps exhausted retries against an unreachable or
	// erroring portal.
	ErrUnavailable = errors.New("portal unavailable")

	// ErrPremiumRedirect marks a response that bounced to an upsell page
	// instead of the requested resource.
	ErrPremiumRedirect = errors.New("portal premium redirect")
)

const (
	defaultTimeout        = 15 * time.Second
	defaultHeaderTimeout  = 10 * time.Second
	defaultRetries        = 2
	defaultBackoff        = 500 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultRateLimit      = 2
	defaultRateLimitBurst = 4

	// maxBodyBytes caps portal response bodies.
	maxBodyBytes = 10 * 1024 * 1024

	// premiumRecoveryAttempts bounds re-requests of the original URL
	// after an upsell redirect.
	premiumRecoveryAttempts = 3
)

// Endpoints carries the per-portal paths from config.yaml.
type Endpoints struct {
	BaseURL           string
	LoginPath         string
	FeedPath          string
	SearchPath        string
	ProfilePath       string
	SecurityCheckPath string
}

// Credentials is the portal login from secrets.yaml.
type Credentials struct {
	Username string
	Password string
}

// Options configures the portal client behavior.
type Options struct {
	Timeout               time.Duration
	ResponseHeaderTimeout time.Duration
	MaxRetries            int
	Backoff               time.Duration
	MaxBackoff            time.Duration
	UserAgent             string
	RateLimit             rate.Limit
	RateLimitBurst        int
	Filters               SearchFilters

	// Policy gates the portal base URL against the outbound allowlist.
	// Nil disables the gate.
	Policy *netpolicy.OutboundPolicy
}

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ResponseHeaderTimeout <= 0 {
		opts.ResponseHeaderTimeout = defaultHeaderTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = "dreambooster/" + version.Version
	}
	return opts
}

// Client talks to one portal. Session cookies live in the client's jar,
// so one client spans login and all later verbs.
type Client struct {
	name    string
	eps     Endpoints
	creds   Credentials
	filters SearchFilters

	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	userAgent  string
	logger     zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// New builds a client for one portal. The base URL must be a direct
// http(s) URL and, when a policy is set, pass the outbound allowlist.
func New(name string, eps Endpoints, creds Credentials, opts Options) (*Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("portal name is required")
	}

	eps.BaseURL = strings.TrimRight(strings.TrimSpace(eps.BaseURL), "/")
	if _, ok := netpolicy.ParseDirectHTTPURL(eps.BaseURL); !ok {
		return nil, fmt.Errorf("portal %s: invalid base url %q", name, eps.BaseURL)
	}
	if opts.Policy != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := netpolicy.ValidateOutboundURL(ctx, eps.BaseURL, *opts.Policy); err != nil {
			return nil, fmt.Errorf("portal %s: outbound policy rejected base url: %w", name, err)
		}
	}

	nopts := normalizeOptions(opts)
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("portal %s: cookie jar: %w", name, err)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: nopts.ResponseHeaderTimeout,
		TLSHandshakeTimeout:   5 * time.Second,
	}

	return &Client{
		name:    name,
		eps:     eps,
		creds:   creds,
		filters: nopts.Filters,
		http: &http.Client{
			Timeout:   nopts.Timeout,
			Transport: transport,
			Jar:       jar,
			// Redirects carry meaning here (security checks, upsell
			// walls), so they are never followed silently.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter:    rate.NewLimiter(nopts.RateLimit, nopts.RateLimitBurst),
		maxRetries: nopts.MaxRetries,
		backoff:    nopts.Backoff,
		maxBackoff: nopts.MaxBackoff,
		userAgent:  nopts.UserAgent,
		logger: log.Derive(func(zc *zerolog.Context) {
			*zc = zc.Str(log.FieldComponent, "portal").Str(log.FieldPortal, name)
		}),
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}, nil
}

// Name returns the portal name.
func (c *Client) Name() string { return c.name }

func (c *Client) url(path string) string {
	if path == "" {
		return c.eps.BaseURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.eps.BaseURL + path
}

// do runs one portal request with rate limiting, retries on 5xx/429 and
// network errors, and a span per attempt. The response is returned for
// any other status; the caller owns the body.
func (c *Client) do(ctx context.Context, op, method, rawURL string, query url.Values, body []byte, contentType string) (*http.Response, error) {
	if query != nil {
		if strings.Contains(rawURL, "?") {
			rawURL += "&" + query.Encode()
		} else {
			rawURL += "?" + query.Encode()
		}
	}

	tracer := telemetry.Tracer("dreambooster.portal")
	ctx, span := tracer.Start(ctx, "dreambooster.portal."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("portal", c.name),
		attribute.String("http.method", method),
		attribute.String("http.url", netpolicy.SanitizeURL(rawURL)),
	)
	defer span.End()

	maxAttempts := c.maxRetries + 1
	var lastErr error
	var lastStatus int

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, attemptSpan := tracer.Start(ctx, "dreambooster.portal."+op+".attempt", trace.WithSpanKind(trace.SpanKindClient))
		attemptSpan.SetAttributes(
			attribute.Int("attempt", attempt),
			attribute.Bool("retry", attempt > 1),
		)

		if err := c.limiter.Wait(attemptCtx); err != nil {
			attemptSpan.RecordError(err)
			attemptSpan.SetStatus(codes.Error, err.Error())
			attemptSpan.End()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(attemptCtx, method, rawURL, reader)
		if err != nil {
			attemptSpan.RecordError(err)
			attemptSpan.SetStatus(codes.Error, err.Error())
			attemptSpan.End()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		otel.GetTextMapPropagator().Inject(attemptCtx, propagation.HeaderCarrier(req.Header))

		start := time.Now()
		resp, err := c.http.Do(req)
		duration := time.Since(start)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}

		retry := shouldRetry(status, err) && attempt < maxAttempts
		outcome := "success"
		switch {
		case retry:
			outcome = "retry"
		case shouldRetry(status, err):
			outcome = "error"
		}
		metrics.IncPortalRequest(c.name, op, outcome)
		metrics.ObservePortalRequest(c.name, op, duration)

		attemptSpan.SetAttributes(attribute.Int("http.status_code", status))
		if err != nil {
			attemptSpan.RecordError(err)
			attemptSpan.SetStatus(codes.Error, err.Error())
		} else if shouldRetry(status, nil) {
			attemptSpan.SetStatus(codes.Error, http.StatusText(status))
		} else {
			attemptSpan.SetStatus(codes.Ok, "")
		}
		attemptSpan.End()

		if err == nil && !shouldRetry(status, nil) {
			span.SetAttributes(attribute.Int("http.status_code", status))
			span.SetStatus(codes.Ok, "")
			return resp, nil
		}

		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		lastErr = err
		lastStatus = status

		if !retry {
			break
		}

		wait := c.backoffFor(attempt - 1)
		c.logger.Debug().
			Str("op", op).
			Int("attempt", attempt).
			Int("status", status).
			Dur("backoff", wait).
			Err(err).
			Msg("portal request failed, retrying")
		if err := sleepWithContext(ctx, wait); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		return nil, fmt.Errorf("%s %s: %w: %v", op, c.name, ErrUnavailable, lastErr)
	}
	span.SetAttributes(attribute.Int("http.status_code", lastStatus))
	span.SetStatus(codes.Error, http.StatusText(lastStatus))
	return nil, fmt.Errorf("%s %s: %w: status %d", op, c.name, ErrUnavailable, lastStatus)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		return true
	}
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

// StatusError carries a terminal non-2xx portal response.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("portal %s: status %d", e.Op, e.Code)
}

// getJSON fetches rawURL and decodes a 2xx JSON body into out. Redirects
// are classified, other statuses surface as StatusError.
func (c *Client) getJSON(ctx context.Context, op, rawURL string, query url.Values, out any) error {
	resp, err := c.do(ctx, op, http.MethodGet, rawURL, query, nil, "")
	if err != nil {
		return err
	}
	return c.decodeJSON(op, resp, out)
}

// postJSON marshals body, posts it and decodes a 2xx JSON response into
// out when out is non-nil.
func (c *Client) postJSON(ctx context.Context, op, rawURL string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	resp, err := c.do(ctx, op, http.MethodPost, rawURL, nil, payload, "application/json")
	if err != nil {
		return err
	}
	return c.decodeJSON(op, resp, out)
}

func (c *Client) decodeJSON(op string, resp *http.Response, out any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return c.redirectError(op, resp)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: op, Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// redirectError classifies a redirect: security checkpoint, premium
// upsell, or unexpected.
func (c *Client) redirectError(op string, resp *http.Response) error {
	loc := resp.Header.Get("Location")
	if c.isSecurityCheck(loc) {
		metrics.IncSecurityCheck(c.name)
		c.logger.Warn().
			Str("op", op).
			Str(log.FieldPath, netpolicy.SanitizeURL(loc)).
			Msg("portal requires a manual security check")
		return fmt.Errorf("%s redirected to checkpoint: %w", op, ErrSecurityCheck)
	}
	if isPremiumRedirect(loc) {
		return fmt.Errorf("%s redirected to %s: %w", op, netpolicy.SanitizeURL(loc), ErrPremiumRedirect)
	}
	return fmt.Errorf("%s: unexpected redirect to %s (status %d)", op, netpolicy.SanitizeURL(loc), resp.StatusCode)
}

func (c *Client) isSecurityCheck(loc string) bool {
	if c.eps.SecurityCheckPath == "" || loc == "" {
		return false
	}
	u, err := url.Parse(loc)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, c.eps.SecurityCheckPath)
}

func isPremiumRedirect(loc string) bool {
	lower := strings.ToLower(loc)
	return strings.Contains(lower, "premium") || strings.Contains(lower, "upsell")
}

// recovering re-runs fn against the original URL when the portal bounces
// it to an upsell page, up to premiumRecoveryAttempts times.
func (c *Client) recovering(op string, fn func() error) error {
	var err error
	for try := 0; ; try++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrPremiumRedirect) {
			return err
		}
		if try >= premiumRecoveryAttempts {
			return fmt.Errorf("%s: premium redirect persisted after %d retries: %w", op, premiumRecoveryAttempts, err)
		}
		c.logger.Warn().
			Str("op", op).
			Int("try", try+1).
			Msg("premium redirect, retrying original url")
	}
}

func (c *Client) backoffFor(attempt int) time.Duration {
	wait := c.backoff * time.Duration(1<<attempt)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	jitter := time.Duration(c.randInt63n(int64(wait/5 + 1)))
	return wait + jitter
}

func (c *Client) randInt63n(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Int63n(n)
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
