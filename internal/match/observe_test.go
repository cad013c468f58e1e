// SPDX-License-Identifier: MIT

package match

import (
	"context"
	"testing"

	"github.com/dreambooster/dreambooster/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	trace_noop "go.opentelemetry.io/otel/trace/noop"
)

// TestVerdictObservabilityContract verifies the span attribute whitelist and
// the verdict counter against an in-memory OTel SDK.
func TestVerdictObservabilityContract(t *testing.T) {
	spanExporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spanExporter))

	metricReader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricReader))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	defer func() {
		otel.SetTracerProvider(trace_noop.NewTracerProvider())
		otel.SetMeterProvider(noop.NewMeterProvider())
	}()

	tests := []struct {
		name         string
		verdict      Verdict
		wantReason   string
		wantSuitable bool
	}{
		{
			name:         "rejection carries reason",
			verdict:      Verdict{Suitable: false, Reason: ReasonSeen},
			wantReason:   ReasonSeen,
			wantSuitable: false,
		},
		{
			name:         "suitable verdict normalizes reason",
			verdict:      Verdict{Suitable: true, Score: 1},
			wantReason:   "suitable",
			wantSuitable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spanExporter.Reset()

			ctx := log.ContextWithRunID(context.Background(), "run-123")
			ctx, span := StartEvaluationSpan(ctx)
			EmitVerdictObs(ctx, "linkhub", tt.verdict)
			span.End()

			spans := spanExporter.GetSpans()
			require.Len(t, spans, 1, "must emit exactly 1 span")
			assert.Equal(t, "dreambooster.match.evaluate", spans[0].Name)

			attrMap := make(map[string]attribute.Value)
			for _, a := range spans[0].Attributes {
				attrMap[string(a.Key)] = a.Value
			}

			require.Contains(t, attrMap, AttrSuitable)
			assert.Equal(t, tt.wantSuitable, attrMap[AttrSuitable].AsBool())
			require.Contains(t, attrMap, AttrReason)
			assert.Equal(t, tt.wantReason, attrMap[AttrReason].AsString())
			require.Contains(t, attrMap, AttrPortal)
			assert.Equal(t, "linkhub", attrMap[AttrPortal].AsString())
			require.Contains(t, attrMap, AttrRunID)
			assert.Equal(t, "run-123", attrMap[AttrRunID].AsString())

			// No attribute outside the frozen whitelist.
			for k := range attrMap {
				assert.True(t, allowedAttributes[k], "found forbidden attribute: %s", k)
			}
		})
	}

	// Both emissions above must have landed in the counter.
	var rm metricdata.ResourceMetrics
	require.NoError(t, metricReader.Collect(context.Background(), &rm))

	var total int64
	reasons := make(map[string]int64)
	for _, scopeMetrics := range rm.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name != "dreambooster_match_verdicts_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "verdict counter must be an int64 sum")
			for _, dp := range sum.DataPoints {
				total += dp.Value
				if reason, ok := dp.Attributes.Value(attribute.Key("reason")); ok {
					reasons[reason.AsString()] += dp.Value
				}
				if portal, ok := dp.Attributes.Value(attribute.Key("portal")); ok {
					assert.Equal(t, "linkhub", portal.AsString())
				}
			}
		}
	}
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), reasons[ReasonSeen])
	assert.Equal(t, int64(1), reasons["suitable"])
}
