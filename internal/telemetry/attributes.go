// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Portal attributes
	PortalNameKey      = "portal.name"
	PortalOperationKey = "portal.operation"
	PortalAttemptKey   = "portal.attempt"

	// Listing attributes
	ListingIDKey      = "listing.id"
	ListingCompanyKey = "listing.company"

	// LLM attributes
	LLMProviderKey = "llm.provider"
	LLMModelKey    = "llm.model"
	LLMAttemptKey  = "llm.attempt"

	// Run attributes
	RunIDKey         = "run.id"
	RunStatusKey     = "run.status"
	RunDurationMSKey = "run.duration_ms"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ListingAttributes creates listing-scoped span attributes.
func ListingAttributes(id, company string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if id != "" {
		attrs = append(attrs, attribute.String(ListingIDKey, id))
	}
	if company != "" {
		attrs = append(attrs, attribute.String(ListingCompanyKey, company))
	}
	return attrs
}

// RunAttributes creates run-scoped span attributes.
func RunAttributes(runID, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RunIDKey, runID),
		attribute.String(RunStatusKey, status),
		attribute.Int64(RunDurationMSKey, durationMS),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
