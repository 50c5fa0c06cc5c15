package model

import (
	"maps"
	"slices"
	"time"
)

// Submission is one accepted intake request: the item IDs, their priority and
// the batches they were split into.
type Submission struct {
	ID            string        `json:"submission_id"`
	ItemIDs       []int         `json:"item_ids"`
	Priority      Priority      `json:"priority"`
	Status        RequestStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	LastUpdatedAt *time.Time    `json:"last_updated_at,omitempty"`
	Batches       []Batch       `json:"batches"`
}

// Batch is an ordered group of at most batch-size item IDs from one Submission.
type Batch struct {
	ID           string             `json:"batch_id"`
	SubmissionID string             `json:"-"`
	Seq          int                `json:"-"` // index within the submission
	ItemIDs      []int              `json:"item_ids"`
	Status       BatchStatus        `json:"status"`
	Results      map[int]ItemResult `json:"results,omitempty"`
	Error        string             `json:"error,omitempty"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
}

// ItemResult is the recorded outcome of one item execution.
type ItemResult struct {
	Status ItemStatus `json:"status"`
	Data   string     `json:"data,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Clone returns a deep copy of the submission.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	c := *s
	c.ItemIDs = slices.Clone(s.ItemIDs)
	if s.LastUpdatedAt != nil {
		t := *s.LastUpdatedAt
		c.LastUpdatedAt = &t
	}
	c.Batches = make([]Batch, len(s.Batches))
	for i := range s.Batches {
		c.Batches[i] = s.Batches[i].Clone()
	}
	return &c
}

// Clone returns a deep copy of the batch.
func (b Batch) Clone() Batch {
	b.ItemIDs = slices.Clone(b.ItemIDs)
	if b.Results != nil {
		b.Results = maps.Clone(b.Results)
	}
	if b.StartedAt != nil {
		t := *b.StartedAt
		b.StartedAt = &t
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		b.CompletedAt = &t
	}
	return b
}

// Settled reports whether the submission can no longer change: the rollup is
// terminal or every batch is. With the in_progress rollup a submission whose
// batches ended COMPLETED and FAILED stays TRIGGERED but is settled.
func (s *Submission) Settled() bool {
	if s.Status.IsTerminal() {
		return true
	}
	if len(s.Batches) == 0 {
		return false
	}
	for _, b := range s.Batches {
		if !b.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// ProgressSummary provides aggregate progress counts for a Submission.
type ProgressSummary struct {
	SubmissionID     string        `json:"submission_id"`
	Status           RequestStatus `json:"status"`
	TotalItems       int           `json:"total_items"`
	ProcessedItems   int           `json:"processed_items"`
	FailedItems      int           `json:"failed_items"`
	TotalBatches     int           `json:"total_batches"`
	PendingBatches   int           `json:"pending_batches"`
	TriggeredBatches int           `json:"triggered_batches"`
	CompletedBatches int           `json:"completed_batches"`
	FailedBatches    int           `json:"failed_batches"`
	ProgressPercent  float64       `json:"progress_percent"`
}

// ComputeProgress calculates the ProgressSummary of a Submission.
// An item counts as processed once it has a recorded result, or once its
// batch failed without per-item results.
func ComputeProgress(s *Submission) ProgressSummary {
	p := ProgressSummary{
		SubmissionID: s.ID,
		Status:       s.Status,
		TotalItems:   len(s.ItemIDs),
		TotalBatches: len(s.Batches),
	}
	for _, b := range s.Batches {
		switch b.Status {
		case BatchStatusPending:
			p.PendingBatches++
		case BatchStatusTriggered:
			p.TriggeredBatches++
		case BatchStatusCompleted:
			p.CompletedBatches++
		case BatchStatusFailed:
			p.FailedBatches++
		}
		if b.Status == BatchStatusFailed && len(b.Results) == 0 {
			p.ProcessedItems += len(b.ItemIDs)
			p.FailedItems += len(b.ItemIDs)
			continue
		}
		for _, r := range b.Results {
			p.ProcessedItems++
			if r.Status == ItemStatusFailed {
				p.FailedItems++
			}
		}
	}
	if p.TotalItems > 0 {
		p.ProgressPercent = float64(p.ProcessedItems) / float64(p.TotalItems) * 100
	}
	return p
}
