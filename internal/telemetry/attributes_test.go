// SPDX-License-Identifier: MIT

package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/api/v1/status", "http://localhost/api/v1/status", 200)
	assert.Len(t, attrs, 4)
	assert.Equal(t, HTTPMethodKey, string(attrs[0].Key))
	assert.Equal(t, "GET", attrs[0].Value.AsString())
	assert.Equal(t, int64(200), attrs[3].Value.AsInt64())
}

func TestListingAttributes_SkipsEmpty(t *testing.T) {
	assert.Empty(t, ListingAttributes("", ""))
	assert.Len(t, ListingAttributes("abc123", ""), 1)
	assert.Len(t, ListingAttributes("abc123", "ExampleCorp"), 2)
}

func TestRunAttributes(t *testing.T) {
	attrs := RunAttributes("run-1", "completed", 4200)
	assert.Len(t, attrs, 3)
	assert.Equal(t, "run-1", attrs[0].Value.AsString())
	assert.Equal(t, int64(4200), attrs[2].Value.AsInt64())
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(errors.New("boom"), "portal_unavailable")
	assert.Len(t, attrs, 2)
	assert.True(t, attrs[0].Value.AsBool())
	assert.Equal(t, "portal_unavailable", attrs[1].Value.AsString())
}
