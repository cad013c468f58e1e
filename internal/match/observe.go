// SPDX-License-Identifier: MIT

package match

import (
	"context"

	"github.com/dreambooster/dreambooster/internal/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Observability keys (frozen)
const (
	AttrSuitable = "dreambooster.verdict.suitable"
	AttrReason   = "dreambooster.verdict.reason"
	AttrPortal   = "dreambooster.verdict.portal"
	AttrRunID    = "dreambooster.runId"
)

// Frozen whitelist for enforcement
var allowedAttributes = map[string]bool{
	AttrSuitable: true,
	AttrReason:   true,
	AttrPortal:   true,
	AttrRunID:    true,
}

// EmitVerdictObs records one verdict on the current span and the verdict
// counter. Attributes are strictly whitelisted so dashboards never see
// surprise label churn.
func EmitVerdictObs(ctx context.Context, portal string, v Verdict) {
	span := trace.SpanFromContext(ctx)

	// Runtime provider lookup, no init-time rebinding
	meter := otel.GetMeterProvider().Meter("dreambooster.match")

	reason := v.Reason
	if v.Suitable {
		reason = "suitable"
	}

	verdictTotal, _ := meter.Int64Counter("dreambooster_match_verdicts_total",
		metric.WithDescription("Total suitability verdicts"))
	verdictTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("portal", portal),
		attribute.Bool("suitable", v.Suitable),
		attribute.String("reason", reason),
	))

	attrs := []attribute.KeyValue{
		attribute.Bool(AttrSuitable, v.Suitable),
		attribute.String(AttrReason, reason),
		attribute.String(AttrPortal, portal),
		attribute.String(AttrRunID, log.RunIDFromContext(ctx)),
	}

	for _, kv := range attrs {
		if !allowedAttributes[string(kv.Key)] {
			logger := log.Base()
			logger.Error().
				Str("key", string(kv.Key)).
				Msg("observability invariant violation: attribute not in whitelist")
			return
		}
	}

	span.SetAttributes(attrs...)
}

// StartEvaluationSpan wraps span creation for one listing evaluation.
func StartEvaluationSpan(ctx context.Context) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer("dreambooster.match")
	return tracer.Start(ctx, "dreambooster.match.evaluate")
}
