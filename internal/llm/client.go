// SPDX-License-Identifier: MIT
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dreambooster/dreambooster/internal/log"
	"github.com/dreambooster/dreambooster/internal/metrics"
	"github.com/dreambooster/dreambooster/internal/platform/httpx"
	netpolicy "github.com/dreambooster/dreambooster/internal/platform/net"
	"github.com/dreambooster/dreambooster/internal/telemetry"
)

// maxResponseSize caps completion response bodies at 10MB.
const maxResponseSize = 10 * 1024 * 1024

const defaultTimeout = 120 * time.Second

// Config selects the provider and credentials, straight from the
// llm_model_type, llm_model, llm_api_key and llm_api_url settings.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// ClientOptions tunes transport behavior beyond the defaults.
type ClientOptions struct {
	Timeout    time.Duration
	Retry      RetryConfig
	HTTPClient *http.Client

	// Policy gates the completion endpoint against the outbound URL
	// allowlist. Nil disables the gate.
	Policy *netpolicy.OutboundPolicy
}

// Client sends completion requests to one configured provider endpoint
// with bounded retries.
type Client struct {
	provider Provider
	model    string
	apiKey   string
	url      string
	http     *http.Client
	retry    RetryConfig
	policy   *netpolicy.OutboundPolicy
	logger   zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// Request is one completion call.
type Request struct {
	Messages []Message
	Options  Options
}

// New creates a client with default transport options.
func New(cfg Config) (*Client, error) {
	return NewWithOptions(cfg, ClientOptions{})
}

// NewWithOptions creates a client with explicit transport options.
func NewWithOptions(cfg Config, opts ClientOptions) (*Client, error) {
	provider, ok := GetProvider(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q, registered: %v", cfg.Provider, ProviderNames())
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = httpx.NewSlowClient(timeout)
	}

	return &Client{
		provider: provider,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		url:      provider.BuildURL(cfg.BaseURL, cfg.Model),
		http:     httpClient,
		retry:    opts.Retry.normalized(),
		policy:   opts.Policy,
		logger: log.Derive(func(zc *zerolog.Context) {
			*zc = zc.Str(log.FieldComponent, "llm").
				Str(log.FieldProvider, cfg.Provider).
				Str(log.FieldModel, cfg.Model)
		}),
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Ping probes the provider endpoint for reachability. Any HTTP
// response counts as reachable, authentication included; only
// transport failures are errors.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("llm endpoint unreachable: %w", err)
	}
	return resp.Body.Close()
}

// ProviderName returns the configured provider name.
func (c *Client) ProviderName() string { return c.provider.Name() }

// Complete sends req and retries transient failures with exponential
// backoff. Fatal errors return immediately.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, NewFatalError(fmt.Errorf("at least one message is required"))
	}

	if c.policy != nil {
		if _, err := netpolicy.ValidateOutboundURL(ctx, c.url, *c.policy); err != nil {
			return nil, NewFatalError(fmt.Errorf("outbound policy rejected llm endpoint: %w", err))
		}
	}

	tracer := telemetry.Tracer("dreambooster.llm")
	ctx, span := tracer.Start(ctx, "dreambooster.llm.complete", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("llm.provider", c.provider.Name()),
		attribute.String("llm.model", c.model),
		attribute.Int("llm.messages", len(req.Messages)),
	)
	defer span.End()

	start := time.Now()
	resp, attempts, err := c.completeWithRetry(ctx, tracer, req)
	duration := time.Since(start)

	metrics.ObserveLLMRequest(c.provider.Name(), c.model, duration)
	if err != nil {
		metrics.IncLLMRequest(c.provider.Name(), c.model, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn().
			Err(err).
			Int("attempts", attempts).
			Dur("duration", duration).
			Msg("completion failed")
		return nil, err
	}

	metrics.IncLLMRequest(c.provider.Name(), c.model, "success")
	metrics.AddLLMTokens(c.provider.Name(), c.model, "prompt", resp.Usage.PromptTokens)
	metrics.AddLLMTokens(c.provider.Name(), c.model, "completion", resp.Usage.CompletionTokens)
	span.SetAttributes(
		attribute.Int("llm.tokens.prompt", resp.Usage.PromptTokens),
		attribute.Int("llm.tokens.completion", resp.Usage.CompletionTokens),
	)
	span.SetStatus(codes.Ok, "")
	c.logger.Debug().
		Int("attempts", attempts).
		Dur("duration", duration).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Str("finish_reason", resp.FinishReason).
		Msg("completion succeeded")
	return resp, nil
}

func (c *Client) completeWithRetry(ctx context.Context, tracer trace.Tracer, req Request) (*Response, int, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		attemptCtx, attemptSpan := tracer.Start(ctx, "dreambooster.llm.complete.attempt", trace.WithSpanKind(trace.SpanKindClient))
		attemptSpan.SetAttributes(
			attribute.Int("attempt", attempt),
			attribute.Bool("retry", attempt > 1),
		)

		resp, err := c.doRequest(attemptCtx, req)
		if err == nil {
			attemptSpan.SetStatus(codes.Ok, "")
			attemptSpan.End()
			return resp, attempt, nil
		}

		attemptSpan.RecordError(err)
		attemptSpan.SetStatus(codes.Error, err.Error())
		attemptSpan.End()
		lastErr = err

		if IsFatal(err) {
			return nil, attempt, err
		}

		if attempt < c.retry.MaxAttempts {
			wait := c.backoffFor(attempt)
			c.logger.Debug().
				Int("attempt", attempt).
				Int("max_attempts", c.retry.MaxAttempts).
				Dur("backoff", wait).
				Err(err).
				Msg("completion attempt failed, retrying")
			if err := sleepWithContext(ctx, wait); err != nil {
				return nil, attempt, err
			}
		}
	}

	return nil, c.retry.MaxAttempts, fmt.Errorf("llm request failed after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

func (c *Client) doRequest(ctx context.Context, req Request) (*Response, error) {
	body, err := c.provider.BuildRequestBody(c.model, req.Messages, req.Options)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	c.provider.SetHeaders(httpReq, c.apiKey)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("completion request: %w", err))
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return c.provider.ParseResponse(respBody)
}

// classifyHTTPError sorts completion endpoint failures into the retry
// taxonomy. Rate limits and server errors are transient, auth and request
// shape errors are fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}
	err := fmt.Errorf("llm api status %d: %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode == http.StatusBadRequest:
		return NewFatalError(err)
	default:
		return NewFatalError(err)
	}
}

func (c *Client) backoffFor(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retry.BackoffMultiplier
	}
	wait := time.Duration(float64(c.retry.BackoffBase) * multiplier)
	if wait > c.retry.MaxBackoff {
		wait = c.retry.MaxBackoff
	}

	// +/-25% jitter against synchronized retries.
	jitter := float64(wait) * 0.25 * (c.randFloat64()*2 - 1)
	return wait + time.Duration(jitter)
}

func (c *Client) randFloat64() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Float64()
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
