// SPDX-License-Identifier: MIT

// Package listing models job listings discovered on portals.
package listing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Listing is one job posting as discovered on a portal feed or search page.
type Listing struct {
	ID                    string    `json:"id"`
	Portal                string    `json:"portal"`
	Title                 string    `json:"title"`
	Company               string    `json:"company"`
	Location              string    `json:"location"`
	Link                  string    `json:"link"`
	ApplyMethod           string    `json:"apply_method,omitempty"`
	Description           string    `json:"description,omitempty"`
	SummarizedDescription string    `json:"summarized_description,omitempty"`
	RecruiterLink         string    `json:"recruiter_link,omitempty"`
	ApplicantCount        int       `json:"applicant_count"` // -1 when unknown
	PostedAt              time.Time `json:"posted_at,omitempty"`
}

// ApplicantCountUnknown marks listings whose applicant count could not be read.
const ApplicantCountUnknown = -1

// New builds a Listing with trimmed fields and a stable ID derived from the
// link. ApplicantCount starts unknown.
func New(portal, title, company, location, link, applyMethod string) Listing {
	l := Listing{
		Portal:         strings.TrimSpace(portal),
		Title:          strings.TrimSpace(title),
		Company:        strings.TrimSpace(company),
		Location:       strings.TrimSpace(location),
		Link:           strings.TrimSpace(link),
		ApplyMethod:    strings.TrimSpace(applyMethod),
		ApplicantCount: ApplicantCountUnknown,
	}
	l.ID = StableID(l.Link)
	return l
}

// Validate reports whether the listing carries the fields every downstream
// step relies on.
func (l Listing) Validate() error {
	switch {
	case l.Title == "":
		return fmt.Errorf("listing has no title")
	case l.Company == "":
		return fmt.Errorf("listing has no company")
	case l.Link == "":
		return fmt.Errorf("listing has no link")
	}
	return nil
}

// StableID derives a deterministic identifier from a listing URL. Tracking
// parameters and fragments vary between visits to the same posting, so only
// scheme, host, and path contribute. The ID is the first 16 hex characters
// of the SHA-256 digest.
func StableID(link string) string {
	canonical := link
	if u, err := url.Parse(strings.TrimSpace(link)); err == nil {
		u.RawQuery = ""
		u.Fragment = ""
		u.User = nil
		u.Host = strings.ToLower(u.Host)
		u.Scheme = strings.ToLower(u.Scheme)
		// A trailing slash is the same posting.
		u.Path = strings.TrimSuffix(u.Path, "/")
		canonical = u.String()
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16]
}

// Markdown renders the listing for notes and exports.
func (l Listing) Markdown() string {
	var b strings.Builder
	b.WriteString("# Job Description\n")
	b.WriteString("## Job Information\n")
	fmt.Fprintf(&b, "- Position: %s\n", l.Title)
	fmt.Fprintf(&b, "- At: %s\n", l.Company)
	fmt.Fprintf(&b, "- Location: %s\n", l.Location)
	fmt.Fprintf(&b, "- Recruiter Profile: %s\n", orNotAvailable(l.RecruiterLink))
	fmt.Fprintf(&b, "- Apply Method: %s\n", orNotAvailable(l.ApplyMethod))
	fmt.Fprintf(&b, "- Job Link: %s\n", l.Link)
	b.WriteString("\n## Description\n")
	if l.Description != "" {
		b.WriteString(l.Description)
	} else {
		b.WriteString("No description provided.")
	}
	b.WriteString("\n\n## Summarized Description\n")
	if l.SummarizedDescription != "" {
		b.WriteString(l.SummarizedDescription)
	} else {
		b.WriteString("No summarized description available.")
	}
	b.WriteString("\n")
	return b.String()
}

func orNotAvailable(s string) string {
	if s == "" {
		return "Not available"
	}
	return s
}

// String returns a concise form for logs.
func (l Listing) String() string {
	return fmt.Sprintf("%s at %s (%s)", l.Title, l.Company, l.Location)
}
