// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextWithRequestID(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		requestID string
		want      string
	}{
		{
			name:      "nil context",
			ctx:       nil,
			requestID: "test-id-123",
			want:      "test-id-123",
		},
		{
			name:      "background context",
			ctx:       context.Background(),
			requestID: "req-456",
			want:      "req-456",
		},
		{
			name:      "empty request ID",
			ctx:       context.Background(),
			requestID: "",
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRequestID(tt.ctx, tt.requestID)
			got := RequestIDFromContext(ctx)
			if got != tt.want {
				t.Errorf("RequestIDFromContext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContextWithRunID(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "run-789")
	if got := RunIDFromContext(ctx); got != "run-789" {
		t.Errorf("RunIDFromContext() = %v, want run-789", got)
	}
	if got := RunIDFromContext(context.Background()); got != "" {
		t.Errorf("RunIDFromContext() on empty context = %v, want empty", got)
	}
	if got := RunIDFromContext(nil); got != "" { //nolint:staticcheck // nil context tolerated
		t.Errorf("RunIDFromContext(nil) = %v, want empty", got)
	}
}

func TestWithContextEnrichment(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-2")
	ctx = ContextWithRunID(ctx, "run-3")

	enriched := WithContext(ctx, logger)
	enriched.Info().Msg("hello")

	var fields map[string]any
	if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if fields["request_id"] != "req-1" {
		t.Errorf("request_id = %v, want req-1", fields["request_id"])
	}
	if fields["correlation_id"] != "corr-2" {
		t.Errorf("correlation_id = %v, want corr-2", fields["correlation_id"])
	}
	if fields["run_id"] != "run-3" {
		t.Errorf("run_id = %v, want run-3", fields["run_id"])
	}
}

func TestWithContextNoFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := WithContext(context.Background(), logger)
	enriched.Info().Msg("bare")

	var fields map[string]any
	if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if _, ok := fields["request_id"]; ok {
		t.Error("request_id should be absent without context value")
	}
}

func TestFromContextFallback(t *testing.T) {
	// Without a logger in context the base logger must be returned, never nil.
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext returned nil for empty context")
	}
	if FromContext(nil) == nil { //nolint:staticcheck // nil context tolerated
		t.Fatal("FromContext returned nil for nil context")
	}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := logger.WithContext(context.Background())
	got := FromContext(ctx)
	got.Info().Msg("via context")
	if buf.Len() == 0 {
		t.Error("expected context logger to be used")
	}
}
