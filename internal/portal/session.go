// SPDX-License-Identifier: MIT
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dreambooster/dreambooster/internal/metrics"
)

// Login opens a portal session by posting the credentials. A 403 or a
// redirect to the security-check path means the portal wants a manual
// checkpoint and yields ErrSecurityCheck.
func (c *Client) Login(ctx context.Context) error {
	if c.eps.LoginPath == "" {
		return fmt.Errorf("portal %s: login path not configured", c.name)
	}

	body := map[string]string{
		"username": c.creds.Username,
		"password": c.creds.Password,
	}
	err := c.postJSON(ctx, "login", c.url(c.eps.LoginPath), body, nil)
	if err == nil {
		c.logger.Info().Msg("portal login succeeded")
		return nil
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusForbidden:
			metrics.IncSecurityCheck(c.name)
			c.logger.Warn().Msg("portal requires a manual security check")
			return fmt.Errorf("login forbidden: %w", ErrSecurityCheck)
		case http.StatusUnauthorized:
			return fmt.Errorf("portal %s: login rejected, check credentials", c.name)
		}
	}
	return err
}

// SessionValid probes the profile path and reports whether the session
// cookie still works.
func (c *Client) SessionValid(ctx context.Context) bool {
	if c.eps.ProfilePath == "" {
		return false
	}
	resp, err := c.do(ctx, "session", http.MethodGet, c.url(c.eps.ProfilePath), nil, nil, "")
	if err != nil {
		c.logger.Debug().Err(err).Msg("session probe failed")
		return false
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}
