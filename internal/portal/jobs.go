// SPDX-License-Identifier: MIT
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dreambooster/dreambooster/internal/listing"
	netpolicy "github.com/dreambooster/dreambooster/internal/platform/net"
)

// jobURL builds a listing-scoped resource URL from the listing link.
func jobURL(l listing.Listing, suffix string) (string, error) {
	link := strings.TrimRight(strings.TrimSpace(l.Link), "/")
	if _, ok := netpolicy.ParseDirectHTTPURL(link); !ok {
		return "", fmt.Errorf("listing %s: invalid link %q", l.ID, netpolicy.SanitizeURL(l.Link))
	}
	return link + suffix, nil
}

// FetchDescription returns the raw job description markup. Callers
// sanitize it before use.
func (c *Client) FetchDescription(ctx context.Context, l listing.Listing) (string, error) {
	u, err := jobURL(l, "/description")
	if err != nil {
		return "", err
	}
	var payload struct {
		Description string `json:"description"`
	}
	if err := c.getJSON(ctx, "description", u, nil, &payload); err != nil {
		return "", err
	}
	return payload.Description, nil
}

// FetchApplicantCount returns how many candidates applied. A missing
// counter endpoint reports unknown, never an error.
func (c *Client) FetchApplicantCount(ctx context.Context, l listing.Listing) (int, error) {
	u, err := jobURL(l, "/applicants")
	if err != nil {
		return listing.ApplicantCountUnknown, err
	}
	var payload struct {
		Count int `json:"count"`
	}
	if err := c.getJSON(ctx, "applicants", u, nil, &payload); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return listing.ApplicantCountUnknown, nil
		}
		return listing.ApplicantCountUnknown, err
	}
	if payload.Count < 0 {
		return listing.ApplicantCountUnknown, nil
	}
	return payload.Count, nil
}
