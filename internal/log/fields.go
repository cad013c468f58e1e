// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldRunID         = "run_id"
	FieldListingID     = "listing_id"
	FieldApplicationID = "application_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Portal fields
	FieldPortal   = "portal"
	FieldPosition = "position"
	FieldLocation = "location"
	FieldPage     = "page"

	// LLM fields
	FieldProvider = "provider"
	FieldModel    = "model"
	FieldQuestion = "question"

	// Outcome fields
	FieldStatus = "status"
	FieldReason = "reason"
	FieldScore  = "score"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
