// SPDX-License-Identifier: MIT
package portal

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dreambooster/dreambooster/internal/listing"
)

// Form field kinds a portal application form can carry.
const (
	FieldText     = "text"
	FieldTextarea = "textarea"
	FieldNumeric  = "numeric"
	FieldDropdown = "dropdown"
	FieldRadio    = "radio"
	FieldCheckbox = "checkbox"
	FieldUpload   = "upload"
)

// FormField is one question on an application form step.
type FormField struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Kind     string   `json:"kind"`
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required"`
}

// FormStep is one page of the multi-step application form.
type FormStep struct {
	Fields []FormField `json:"fields"`
}

// Form is the full application form for one listing.
type Form struct {
	Steps []FormStep `json:"steps"`
}

// StepResult reports a step submission. Next carries a server-amended
// following step when the portal rewrites the flow mid-application.
type StepResult struct {
	Done bool      `json:"done"`
	Next *FormStep `json:"next,omitempty"`
}

// FetchForm loads the application form. Upsell redirects are retried
// against the original URL before failing the listing.
func (c *Client) FetchForm(ctx context.Context, l listing.Listing) (*Form, error) {
	u, err := jobURL(l, "/apply")
	if err != nil {
		return nil, err
	}
	var form Form
	err = c.recovering("form", func() error {
		form = Form{}
		return c.getJSON(ctx, "form", u, nil, &form)
	})
	if err != nil {
		return nil, err
	}
	return &form, nil
}

// SubmitStep posts the answers for one step, keyed by field ID.
func (c *Client) SubmitStep(ctx context.Context, l listing.Listing, step int, answers map[string]string) (*StepResult, error) {
	if step < 0 {
		return nil, fmt.Errorf("listing %s: negative step %d", l.ID, step)
	}
	u, err := jobURL(l, "/apply/steps/"+strconv.Itoa(step))
	if err != nil {
		return nil, err
	}

	body := struct {
		Answers map[string]string `json:"answers"`
	}{Answers: answers}

	var result StepResult
	err = c.recovering("submit", func() error {
		result = StepResult{}
		return c.postJSON(ctx, "submit", u, body, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UploadResume posts the resume document for an upload field as
// multipart form data with an application/pdf part.
func (c *Client) UploadResume(ctx context.Context, l listing.Listing, path string) error {
	u, err := jobURL(l, "/apply/resume")
	if err != nil {
		return err
	}

	doc, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read resume %s: %w", path, err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="resume"; filename=%q`, filepath.Base(path)))
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("build resume upload: %w", err)
	}
	if _, err := part.Write(doc); err != nil {
		return fmt.Errorf("build resume upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("build resume upload: %w", err)
	}

	return c.recovering("upload", func() error {
		resp, err := c.do(ctx, "upload", http.MethodPost, u, nil, buf.Bytes(), writer.FormDataContentType())
		if err != nil {
			return err
		}
		return c.decodeJSON("upload", resp, nil)
	})
}

// Discard abandons an in-progress application so the portal does not
// keep a half-filled draft around.
func (c *Client) Discard(ctx context.Context, l listing.Listing) error {
	u, err := jobURL(l, "/discard")
	if err != nil {
		return err
	}
	return c.postJSON(ctx, "discard", u, struct{}{}, nil)
}
