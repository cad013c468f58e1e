// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"time"
)

// Pinger is anything with a cheap connectivity probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker probes a persistence layer (state store, ledger).
// Failures are unhealthy: without storage no run can record anything.
type StoreChecker struct {
	name string
	ping func(ctx context.Context) error
}

// NewStoreChecker wraps a store ping function.
func NewStoreChecker(name string, ping func(ctx context.Context) error) *StoreChecker {
	return &StoreChecker{name: name, ping: ping}
}

func (c *StoreChecker) Name() string { return c.name }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	if c.ping == nil {
		return CheckResult{Status: StatusUnhealthy, Error: "store not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.ping(checkCtx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "store reachable"}
}

// PortalChecker probes one configured portal's session endpoint. An
// unreachable portal degrades readiness but does not fail it: runs
// against the other portals still work.
type PortalChecker struct {
	name  string
	valid func(ctx context.Context) bool
}

// NewPortalChecker wraps a portal session probe.
func NewPortalChecker(name string, valid func(ctx context.Context) bool) *PortalChecker {
	return &PortalChecker{name: name, valid: valid}
}

func (c *PortalChecker) Name() string { return "portal_" + c.name }

func (c *PortalChecker) Check(ctx context.Context) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if !c.valid(checkCtx) {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "portal session invalid or unreachable",
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "session valid"}
}

// LLMChecker probes the completion endpoint. Like portals, an
// unreachable model degrades readiness rather than failing it: runs
// still work off saved answers.
type LLMChecker struct {
	ping func(ctx context.Context) error
}

// NewLLMChecker wraps the LLM client's reachability probe.
func NewLLMChecker(ping func(ctx context.Context) error) *LLMChecker {
	return &LLMChecker{ping: ping}
}

func (c *LLMChecker) Name() string { return "llm" }

func (c *LLMChecker) Check(ctx context.Context) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.ping(checkCtx); err != nil {
		return CheckResult{
			Status: StatusDegraded,
			Error:  err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "endpoint reachable"}
}

// LastRunChecker reports on the most recent application run.
type LastRunChecker struct {
	getLastRun func() (time.Time, string)
}

// NewLastRunChecker creates a checker over the runner's last run state.
func NewLastRunChecker(getLastRun func() (time.Time, string)) *LastRunChecker {
	return &LastRunChecker{getLastRun: getLastRun}
}

func (c *LastRunChecker) Name() string { return "last_run" }

func (c *LastRunChecker) Check(_ context.Context) CheckResult {
	lastRun, lastError := c.getLastRun()

	// No run yet is normal right after startup; the scheduler or the
	// operator will trigger one.
	if lastRun.IsZero() {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "no run yet",
		}
	}

	if lastError != "" {
		return CheckResult{
			Status:  StatusDegraded,
			Error:   lastError,
			Message: "last run failed",
		}
	}

	return CheckResult{Status: StatusHealthy, Message: "last run successful"}
}
