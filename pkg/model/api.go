package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination holds pagination metadata for list endpoints.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListOptions configures list queries with pagination and filtering.
type ListOptions struct {
	Limit  int
	Offset int
	Status RequestStatus // Optional rollup filter
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// Clamp enforces limits (max 100, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// SubmitRequest is the intake body.
type SubmitRequest struct {
	ItemIDs  []int  `json:"item_ids" yaml:"item_ids" validate:"required,min=1"`
	Priority string `json:"priority" yaml:"priority" validate:"required,oneof=HIGH MEDIUM LOW"`
}

// SubmitResponse is returned by intake. Duplicate is true when the body
// matched an earlier submission inside the idempotency window.
type SubmitResponse struct {
	SubmissionID string        `json:"submission_id"`
	Status       RequestStatus `json:"status"`
	Duplicate    bool          `json:"duplicate"`
}
