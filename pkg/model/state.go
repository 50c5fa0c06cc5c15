package model

import "fmt"

// Priority is the scheduling class of a Submission.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// Rank orders priorities for the dispatch queue. Higher ranks run first;
// unknown priorities rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ParsePriority converts a wire value to a Priority. Matching is case-sensitive.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if p.Rank() == 0 {
		return "", fmt.Errorf("unknown priority %q (want HIGH, MEDIUM or LOW)", s)
	}
	return p, nil
}

// BatchStatus represents the lifecycle state of a Batch.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "PENDING"
	BatchStatusTriggered BatchStatus = "TRIGGERED"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
)

// String returns the string representation of the batch status.
func (s BatchStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the batch is in a final state.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// ValidBatchTransitions defines the allowed state transitions for Batches.
// PENDING -> FAILED only happens when the dispatcher faults before triggering.
var ValidBatchTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusPending:   {BatchStatusTriggered, BatchStatusFailed},
	BatchStatusTriggered: {BatchStatusCompleted, BatchStatusFailed},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	for _, allowed := range ValidBatchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RequestStatus is the rollup status of a Submission. It is always derived
// from the statuses of its batches.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusTriggered RequestStatus = "TRIGGERED"
	RequestStatusCompleted RequestStatus = "COMPLETED"
	RequestStatusFailed    RequestStatus = "FAILED"
)

// String returns the string representation of the request status.
func (s RequestStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further batch progress can change the rollup.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusFailed
}

// ParseRequestStatus validates a status filter value.
func ParseRequestStatus(s string) (RequestStatus, error) {
	switch st := RequestStatus(s); st {
	case RequestStatusPending, RequestStatusTriggered, RequestStatusCompleted, RequestStatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// ItemStatus is the outcome of executing a single work item.
type ItemStatus string

const (
	ItemStatusCompleted ItemStatus = "COMPLETED"
	ItemStatusFailed    ItemStatus = "FAILED"
)
