// SPDX-License-Identifier: MIT
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run engine metrics
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambooster_runs_total",
		Help: "Completed application runs by outcome",
	}, []string{"outcome"}) // outcome=completed|failed|canceled

	runDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dreambooster_run_duration_seconds",
		Help:    "Wall clock duration of application runs",
		Buckets: []float64{30, 60, 300, 900, 1800, 3600, 7200, 14400},
	})

	runActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dreambooster_run_active",
		Help: "Whether an application run is currently in progress (1) or not (0)",
	})

	// Discovery metrics
	listingsDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambooster_listings_discovered_total",
		Help: "Listings discovered on search pages per portal",
	}, []string{"portal"})

	searchPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambooster_search_pages_total",
		Help: "Search result pages fetched per portal",
	}, []string{"portal"})

	jobsSeenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dreambooster_jobs_seen_total",
		Help: "Listings evaluated during runs",
	})

	jobsSuitableTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dreambooster_jobs_suitable_total",
		Help: "Listings that passed the suitability rules",
	})

	skipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambooster_skips_total",
		Help: "Listings skipped during runs by reason",
	}, []string{"reason"})

	// Application metrics
	applicationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambooster_applications_total",
		Help: "Application outcomes per portal",
	}, []string{"portal", "status"}) // status=applied|skipped|failed

	// Portal client metrics
	portalRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambooster_portal_requests_total",
		Help: "Portal HTTP requests by operation and outcome",
	}, []string{"portal", "operation", "outcome"}) // outcome=success|error

	portalRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dreambooster_portal_request_duration_seconds",
		Help:    "Portal HTTP request latency by operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"portal", "operation"})

	securityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambooster_security_checks_total",
		Help: "Security check pages encountered during login per portal",
	}, []string{"portal"})

	// LLM metrics
	llmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambooster_llm_requests_total",
		Help: "LLM completion requests by outcome",
	}, []string{"provider", "model", "outcome"}) // outcome=success|transient_error|fatal_error

	llmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dreambooster_llm_request_duration_seconds",
		Help:    "LLM completion latency",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"provider", "model"})

	llmTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambooster_llm_tokens_total",
		Help: "Tokens consumed by LLM requests",
	}, []string{"provider", "model", "kind"}) // kind=prompt|completion

	// Answer store metrics
	answersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambooster_answers_total",
		Help: "Form answers by source",
	}, []string{"source"}) // source=saved|generated|profile

	answerStoreHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambooster_answer_store_hits_total",
		Help: "Saved answer lookups by result",
	}, []string{"result"}) // result=hit|miss|drift

	// Operational metrics
	configValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dreambooster_config_validation_errors_total",
		Help: "Total number of configuration validation errors",
	})

	cacheOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambooster_cache_operations_total",
		Help: "Cache lookups by backend and result",
	}, []string{"backend", "result"}) // result=hit|miss|error

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dreambooster_circuit_breaker_state",
		Help: "Circuit breaker state per portal (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambooster_circuit_breaker_trips_total",
		Help: "Circuit breaker transitions to open by cause",
	}, []string{"name", "cause"})
)

func IncRun(outcome string)              { runsTotal.WithLabelValues(outcome).Inc() }
func ObserveRunDuration(d time.Duration) { runDurationSeconds.Observe(d.Seconds()) }

func SetRunActive(active bool) {
	if active {
		runActive.Set(1)
		return
	}
	runActive.Set(0)
}

func IncListingsDiscovered(portal string, n int) {
	listingsDiscovered.WithLabelValues(portal).Add(float64(n))
}
func IncSearchPage(portal string) { searchPagesTotal.WithLabelValues(portal).Inc() }

func IncJobSeen()           { jobsSeenTotal.Inc() }
func IncJobSuitable()       { jobsSuitableTotal.Inc() }
func IncSkip(reason string) { skipsTotal.WithLabelValues(reason).Inc() }

func IncApplication(portal, status string) {
	applicationsTotal.WithLabelValues(portal, status).Inc()
}

func IncPortalRequest(portal, operation, outcome string) {
	portalRequestsTotal.WithLabelValues(portal, operation, outcome).Inc()
}
func ObservePortalRequest(portal, operation string, d time.Duration) {
	portalRequestDuration.WithLabelValues(portal, operation).Observe(d.Seconds())
}
func IncSecurityCheck(portal string) { securityChecksTotal.WithLabelValues(portal).Inc() }

func IncLLMRequest(provider, model, outcome string) {
	llmRequestsTotal.WithLabelValues(provider, model, outcome).Inc()
}
func ObserveLLMRequest(provider, model string, d time.Duration) {
	llmRequestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}
func AddLLMTokens(provider, model, kind string, n int) {
	if n <= 0 {
		return
	}
	llmTokensTotal.WithLabelValues(provider, model, kind).Add(float64(n))
}

func IncAnswer(source string) { answersTotal.WithLabelValues(source).Inc() }

func IncAnswerLookup(result string) { answerStoreHits.WithLabelValues(result).Inc() }

func IncConfigValidationError() { configValidationErrors.Inc() }

func IncCacheOperation(backend, result string) {
	cacheOperationsTotal.WithLabelValues(backend, result).Inc()
}

func SetCircuitBreakerState(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	circuitBreakerState.WithLabelValues(name).Set(v)
}

func RecordCircuitBreakerTrip(name, cause string) {
	circuitBreakerTrips.WithLabelValues(name, cause).Inc()
}
