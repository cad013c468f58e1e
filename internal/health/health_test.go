// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChecker struct {
	name   string
	result CheckResult
}

func (c staticChecker) Name() string                        { return c.name }
func (c staticChecker) Check(_ context.Context) CheckResult { return c.result }

func TestHealth_AlwaysHealthyWithoutVerbose(t *testing.T) {
	m := NewManager("1.0.0")
	m.RegisterChecker(staticChecker{"broken", CheckResult{Status: StatusUnhealthy}})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks)
	assert.Equal(t, "1.0.0", resp.Version)
}

func TestHealth_VerboseAggregatesWorstStatus(t *testing.T) {
	m := NewManager("1.0.0")
	m.RegisterChecker(staticChecker{"ok", CheckResult{Status: StatusHealthy}})
	m.RegisterChecker(staticChecker{"slow", CheckResult{Status: StatusDegraded}})

	resp := m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestReady_UnhealthyComponentFailsReadiness(t *testing.T) {
	m := NewManager("1.0.0")
	m.RegisterChecker(staticChecker{"store", CheckResult{Status: StatusUnhealthy, Error: "badger closed"}})

	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestReady_DegradedStaysReady(t *testing.T) {
	m := NewManager("1.0.0")
	m.RegisterChecker(staticChecker{"portal_linkedjobs", CheckResult{Status: StatusDegraded}})

	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)
}

func TestReady_NoCheckersMeansReady(t *testing.T) {
	m := NewManager("1.0.0")
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
}

func TestServeReady_StatusCodes(t *testing.T) {
	m := NewManager("1.0.0")
	m.RegisterChecker(staticChecker{"store", CheckResult{Status: StatusUnhealthy}})

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Ready)
}

func TestServeHealth_Always200(t *testing.T) {
	m := NewManager("1.0.0")
	m.RegisterChecker(staticChecker{"store", CheckResult{Status: StatusUnhealthy}})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestFileChecker(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing", func(t *testing.T) {
		c := NewFileChecker("resume", filepath.Join(dir, "missing.pdf"))
		assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
	})

	t.Run("empty", func(t *testing.T) {
		path := filepath.Join(dir, "empty.pdf")
		require.NoError(t, os.WriteFile(path, nil, 0o600))
		c := NewFileChecker("resume", path)
		assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
	})

	t.Run("present", func(t *testing.T) {
		path := filepath.Join(dir, "resume.pdf")
		require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))
		c := NewFileChecker("resume", path)
		assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
	})

	t.Run("unconfigured is optional", func(t *testing.T) {
		c := NewFileChecker("resume", "")
		assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
	})
}

func TestStoreChecker(t *testing.T) {
	ok := NewStoreChecker("state", func(_ context.Context) error { return nil })
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	broken := NewStoreChecker("state", func(_ context.Context) error { return errors.New("closed") })
	assert.Equal(t, StatusUnhealthy, broken.Check(context.Background()).Status)

	unset := NewStoreChecker("state", nil)
	assert.Equal(t, StatusUnhealthy, unset.Check(context.Background()).Status)
}

func TestPortalChecker_DegradesOnFailure(t *testing.T) {
	down := NewPortalChecker("linkedjobs", func(_ context.Context) bool { return false })
	res := down.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "portal_linkedjobs", down.Name())

	up := NewPortalChecker("linkedjobs", func(_ context.Context) bool { return true })
	assert.Equal(t, StatusHealthy, up.Check(context.Background()).Status)
}

func TestLLMChecker_DegradesOnFailure(t *testing.T) {
	down := NewLLMChecker(func(_ context.Context) error { return errors.New("connection refused") })
	res := down.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "llm", down.Name())

	up := NewLLMChecker(func(_ context.Context) error { return nil })
	assert.Equal(t, StatusHealthy, up.Check(context.Background()).Status)
}

func TestLastRunChecker(t *testing.T) {
	t.Run("no run yet", func(t *testing.T) {
		c := NewLastRunChecker(func() (time.Time, string) { return time.Time{}, "" })
		assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
	})

	t.Run("last run failed", func(t *testing.T) {
		c := NewLastRunChecker(func() (time.Time, string) { return time.Now(), "portal unavailable" })
		res := c.Check(context.Background())
		assert.Equal(t, StatusDegraded, res.Status)
		assert.Equal(t, "portal unavailable", res.Error)
	})

	t.Run("last run ok", func(t *testing.T) {
		c := NewLastRunChecker(func() (time.Time, string) { return time.Now(), "" })
		assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
	})
}
