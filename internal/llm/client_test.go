// SPDX-License-Identifier: MIT
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	netpolicy "github.com/dreambooster/dreambooster/internal/platform/net"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func completionJSON(t *testing.T, content string) string {
	t.Helper()
	quoted, err := json.Marshal(content)
	require.NoError(t, err)
	return fmt.Sprintf(`{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4o-mini",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": %s}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49}
	}`, quoted)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewWithOptions(
		Config{Provider: "openai", Model: "gpt-4o-mini", APIKey: "test-key", BaseURL: srv.URL},
		ClientOptions{Retry: testRetryConfig()},
	)
	require.NoError(t, err)
	return client
}

func TestCompleteSuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody openAIRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, completionJSON(t, "Berlin"))
	})

	resp, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "Where do you live?"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Berlin", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 42, resp.Usage.PromptTokens)
	assert.Equal(t, 7, resp.Usage.CompletionTokens)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "gpt-4o-mini", gotBody.Model)
	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, "Where do you live?", gotBody.Messages[0].Content)
}

func TestCompleteRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			fmt.Fprint(w, completionJSON(t, "ok"))
		}
	})

	resp, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCompleteFatalStopsImmediately(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestCompleteEmptyMessages(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := client.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, int32(0), calls.Load())
}

func TestCompleteContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompleteOutboundPolicyGate(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	// Loopback is never in the allowlist, so the gate must refuse before
	// the first request.
	client, err := NewWithOptions(
		Config{Provider: "openai", Model: "gpt-4o-mini", BaseURL: srv.URL},
		ClientOptions{
			Retry: testRetryConfig(),
			Policy: &netpolicy.OutboundPolicy{
				Enabled: true,
				Allow: netpolicy.OutboundAllowlist{
					Hosts:   []string{"api.openai.com"},
					Schemes: []string{"https"},
				},
			},
		},
	)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "outbound policy")
	assert.Equal(t, int32(0), calls.Load())
}

func TestCompleteParseFailureIsFatal(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"choices": []}`)
	})

	_, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Even an auth failure proves the endpoint is reachable.
		w.WriteHeader(http.StatusUnauthorized)
	})
	require.NoError(t, client.Ping(context.Background()))

	down, err := NewWithOptions(
		Config{Provider: "openai", Model: "gpt-4o-mini", BaseURL: "http://127.0.0.1:1"},
		ClientOptions{Retry: testRetryConfig()},
	)
	require.NoError(t, err)
	require.Error(t, down.Ping(context.Background()))
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "mystery", Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown llm provider")
	assert.Contains(t, err.Error(), "openai")
}

func TestNewMissingModel(t *testing.T) {
	_, err := New(Config{Provider: "openai"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model is required")
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		err := classifyHTTPError(tt.status, []byte("boom"))
		assert.Equal(t, tt.transient, IsTransient(err), "status %d", tt.status)
		assert.Equal(t, !tt.transient, IsFatal(err), "status %d", tt.status)
	}
}

func TestBackoffStaysBounded(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	upper := client.retry.MaxBackoff + client.retry.MaxBackoff/4
	for attempt := 1; attempt <= 10; attempt++ {
		wait := client.backoffFor(attempt)
		assert.LessOrEqual(t, wait, upper, "attempt %d", attempt)
		assert.Greater(t, wait, time.Duration(0), "attempt %d", attempt)
	}
}
