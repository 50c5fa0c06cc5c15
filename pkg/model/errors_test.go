package model

import "testing"

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: ErrNotFound, Message: "Submission 'sub_123' not found"}
	want := "NOT_FOUND: Submission 'sub_123' not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Submission", "sub_abc")
	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Message != "Submission 'sub_abc' not found" {
		t.Errorf("Message = %q, want %q", err.Message, "Submission 'sub_abc' not found")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("Invalid request",
		FieldError{Field: "item_ids", Message: "required"},
		FieldError{Field: "priority", Message: "must be one of HIGH MEDIUM LOW"},
	)
	if err.Code != ErrValidation {
		t.Errorf("Code = %q, want %q", err.Code, ErrValidation)
	}
	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{
		Entity: "Batch",
		ID:     "batch_123",
		From:   "COMPLETED",
		To:     "PENDING",
	}
	want := "invalid Batch state transition: COMPLETED → PENDING (entity batch_123)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewInternalError(t *testing.T) {
	err := NewInternalError("disk full")
	if err.Code != ErrInternal {
		t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
	}
	if err.Error() != "INTERNAL_ERROR: disk full" {
		t.Errorf("Error() = %q", err.Error())
	}
}
