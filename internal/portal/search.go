// SPDX-License-Identifier: MIT
package portal

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dreambooster/dreambooster/internal/listing"
	"github.com/dreambooster/dreambooster/internal/log"
	"github.com/dreambooster/dreambooster/internal/metrics"
	netpolicy "github.com/dreambooster/dreambooster/internal/platform/net"
)

// pageSize is the portal search page size; start offsets step by it.
const pageSize = 25

// SearchQuery addresses one search page for a position/location pair.
type SearchQuery struct {
	Position string
	Location string
	Page     int
}

// SearchFilters narrows searches; constant for a whole run. Experience
// levels use the portal's numeric codes, job types its letter codes, the
// date window its r<seconds> form.
type SearchFilters struct {
	Remote           bool
	ExperienceLevels []int
	JobTypes         []string
	DateWindow       string
	Distance         int
}

type jobPayload struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Link        string `json:"link"`
	ApplyMethod string `json:"apply_method"`
	Applicants  *int   `json:"applicants"`
}

type jobListPayload struct {
	Jobs []jobPayload `json:"jobs"`
}

func (c *Client) searchParams(q SearchQuery) url.Values {
	v := url.Values{}
	v.Set("keywords", q.Position)
	v.Set("location", q.Location)
	v.Set("start", strconv.Itoa(q.Page*pageSize))

	f := c.filters
	if f.Remote {
		v.Set("f_WRA", "true")
	}
	if len(f.ExperienceLevels) > 0 {
		codes := make([]string, len(f.ExperienceLevels))
		for i, code := range f.ExperienceLevels {
			codes[i] = strconv.Itoa(code)
		}
		v.Set("f_E", strings.Join(codes, ","))
	}
	if len(f.JobTypes) > 0 {
		v.Set("f_JT", strings.Join(f.JobTypes, ","))
	}
	if f.DateWindow != "" {
		v.Set("f_TPR", f.DateWindow)
	}
	if f.Distance > 0 {
		v.Set("distance", strconv.Itoa(f.Distance))
	}
	return v
}

// Search fetches one result page. An empty slice means the pair is
// exhausted and pagination should stop.
func (c *Client) Search(ctx context.Context, q SearchQuery) ([]listing.Listing, error) {
	if c.eps.SearchPath == "" {
		return nil, fmt.Errorf("portal %s: search path not configured", c.name)
	}

	var payload jobListPayload
	if err := c.getJSON(ctx, "search", c.url(c.eps.SearchPath), c.searchParams(q), &payload); err != nil {
		return nil, err
	}

	listings := c.toListings("search", payload.Jobs)
	metrics.IncSearchPage(c.name)
	metrics.IncListingsDiscovered(c.name, len(listings))
	c.logger.Debug().
		Str(log.FieldPosition, q.Position).
		Str(log.FieldLocation, q.Location).
		Int(log.FieldPage, q.Page).
		Int("listings", len(listings)).
		Msg("search page fetched")
	return listings, nil
}

// Feed fetches the portal's recommended-jobs feed.
func (c *Client) Feed(ctx context.Context) ([]listing.Listing, error) {
	if c.eps.FeedPath == "" {
		return nil, fmt.Errorf("portal %s: feed path not configured", c.name)
	}

	var payload jobListPayload
	if err := c.getJSON(ctx, "feed", c.url(c.eps.FeedPath), nil, &payload); err != nil {
		return nil, err
	}

	listings := c.toListings("feed", payload.Jobs)
	metrics.IncListingsDiscovered(c.name, len(listings))
	c.logger.Debug().Int("listings", len(listings)).Msg("feed fetched")
	return listings, nil
}

// toListings maps wire jobs to listings, dropping entries that lack the
// fields every downstream consumer needs.
func (c *Client) toListings(op string, jobs []jobPayload) []listing.Listing {
	listings := make([]listing.Listing, 0, len(jobs))
	for _, j := range jobs {
		l := listing.New(c.name, j.Title, j.Company, j.Location, j.Link, j.ApplyMethod)
		if j.Applicants != nil {
			l.ApplicantCount = *j.Applicants
		}
		if err := l.Validate(); err != nil {
			c.logger.Warn().
				Str("op", op).
				Str(log.FieldPath, netpolicy.SanitizeURL(j.Link)).
				Err(err).
				Msg("dropping malformed job entry")
			continue
		}
		listings = append(listings, l)
	}
	return listings
}
