// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPDirectPeer(t *testing.T) {
	trusted := parseTrustedProxies([]string{"10.0.0.0/8"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")

	// Untrusted peer: the forwarding header is ignored.
	assert.Equal(t, "203.0.113.9", ClientIP(req, trusted))
}

func TestClientIPTrustedProxy(t *testing.T) {
	trusted := parseTrustedProxies([]string{"10.0.0.0/8"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4242"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.1.2.4")

	// Rightmost non-proxy hop wins.
	assert.Equal(t, "198.51.100.7", ClientIP(req, trusted))
}

func TestClientIPSpoofedHops(t *testing.T) {
	trusted := parseTrustedProxies([]string{"10.0.0.0/8"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4242"
	req.Header.Set("X-Forwarded-For", "garbage, 198.51.100.7")

	assert.Equal(t, "198.51.100.7", ClientIP(req, trusted))
}

func TestClientIPNoTrustedProxies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")

	assert.Equal(t, "203.0.113.9", ClientIP(req, nil))
}

func TestParseTrustedProxies(t *testing.T) {
	nets := parseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1", "", "not-a-cidr", "::1"})
	assert.Len(t, nets, 3)
}
