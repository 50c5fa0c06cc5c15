package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/me/ingestd/pkg/model"
)

// ErrNotFound is returned for unknown submission or batch IDs.
var ErrNotFound = errors.New("not found")

// Journal receives a write-through copy of every status change. Reads fall
// back to it for submissions not tracked in memory.
type Journal interface {
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	UpdateSubmission(ctx context.Context, sub *model.Submission) error
	UpdateBatch(ctx context.Context, b *model.Batch) error
	ListUnfinished(ctx context.Context) ([]*model.Submission, error)
}

// record is one tracked submission. Its lock guards sub and every batch in it.
type record struct {
	mu  sync.RWMutex
	sub *model.Submission
}

// Aggregator tracks submissions in memory and recomputes rollups after each
// batch transition. Writes lock only the affected submission.
type Aggregator struct {
	policy  Policy
	journal Journal
	logger  *slog.Logger

	mu      sync.RWMutex
	records map[string]*record // by submission ID
	owners  map[string]*record // by batch ID
	order   []string           // submission IDs in registration order
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithPolicy selects the rollup policy.
func WithPolicy(p Policy) Option {
	return func(a *Aggregator) { a.policy = p }
}

// WithJournal enables write-through to j.
func WithJournal(j Journal) Option {
	return func(a *Aggregator) { a.journal = j }
}

// NewAggregator creates an Aggregator using PolicyInProgress unless overridden.
func NewAggregator(logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		policy:  PolicyInProgress,
		logger:  logger.With("component", "status"),
		records: make(map[string]*record),
		owners:  make(map[string]*record),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Policy returns the active rollup policy.
func (a *Aggregator) Policy() Policy { return a.policy }

// Register starts tracking sub. Every batch is reset to PENDING and the
// rollup is computed from them.
func (a *Aggregator) Register(ctx context.Context, sub *model.Submission) error {
	s := sub.Clone()
	for i := range s.Batches {
		s.Batches[i].Status = model.BatchStatusPending
		s.Batches[i].SubmissionID = s.ID
		s.Batches[i].Seq = i
	}
	s.Status = Rollup(a.policy, batchStatuses(s.Batches))
	s.LastUpdatedAt = nil
	rec := &record{sub: s}

	a.mu.Lock()
	if _, dup := a.records[s.ID]; dup {
		a.mu.Unlock()
		return fmt.Errorf("submission %s already registered", s.ID)
	}
	a.records[s.ID] = rec
	for i := range s.Batches {
		a.owners[s.Batches[i].ID] = rec
	}
	a.order = append(a.order, s.ID)
	a.mu.Unlock()

	if a.journal != nil {
		rec.mu.RLock()
		snapshot := rec.sub.Clone()
		rec.mu.RUnlock()
		if err := a.journal.CreateSubmission(ctx, snapshot); err != nil {
			a.logger.Error("journal create submission", "submission_id", s.ID, "error", err)
		}
	}
	a.logger.Debug("submission registered", "submission_id", s.ID, "batches", len(s.Batches))
	return nil
}

// MarkTriggered moves a PENDING batch to TRIGGERED.
func (a *Aggregator) MarkTriggered(ctx context.Context, batchID string, at time.Time) error {
	return a.transition(ctx, batchID, at, func(b *model.Batch) model.BatchStatus {
		b.StartedAt = &at
		return model.BatchStatusTriggered
	})
}

// RecordOutcome stores per-item results for a TRIGGERED batch and closes it:
// COMPLETED if every item succeeded, FAILED otherwise. Items missing from
// results count as failures.
func (a *Aggregator) RecordOutcome(ctx context.Context, batchID string, results map[int]model.ItemResult, at time.Time) error {
	return a.transition(ctx, batchID, at, func(b *model.Batch) model.BatchStatus {
		b.Results = make(map[int]model.ItemResult, len(b.ItemIDs))
		next := model.BatchStatusCompleted
		var failed int
		for _, id := range b.ItemIDs {
			r, ok := results[id]
			if !ok {
				r = model.ItemResult{Status: model.ItemStatusFailed, Error: "no outcome recorded"}
			}
			b.Results[id] = r
			if r.Status != model.ItemStatusCompleted {
				next = model.BatchStatusFailed
				failed++
			}
		}
		if failed > 0 {
			b.Error = fmt.Sprintf("%d of %d items failed", failed, len(b.ItemIDs))
		}
		b.CompletedAt = &at
		return next
	})
}

// FailBatch marks a PENDING or TRIGGERED batch FAILED with reason. Used when
// the dispatcher itself faults.
func (a *Aggregator) FailBatch(ctx context.Context, batchID, reason string, at time.Time) error {
	return a.transition(ctx, batchID, at, func(b *model.Batch) model.BatchStatus {
		b.Error = reason
		b.CompletedAt = &at
		return model.BatchStatusFailed
	})
}

// transition applies mutate to a copy of the batch and commits it only if the
// resulting status change is valid. It then recomputes the rollup.
func (a *Aggregator) transition(ctx context.Context, batchID string, at time.Time, mutate func(*model.Batch) model.BatchStatus) error {
	a.mu.RLock()
	rec, ok := a.owners[batchID]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}

	rec.mu.Lock()
	idx := slices.IndexFunc(rec.sub.Batches, func(b model.Batch) bool { return b.ID == batchID })
	cur := &rec.sub.Batches[idx]
	next := cur.Clone()
	to := mutate(&next)
	if !cur.Status.CanTransitionTo(to) {
		rec.mu.Unlock()
		return &model.InvalidTransitionError{Entity: "Batch", ID: batchID, From: string(cur.Status), To: string(to)}
	}
	next.Status = to
	*cur = next

	prev := rec.sub.Status
	rec.sub.Status = a.recompute(prev, rec.sub.Batches)
	rec.sub.LastUpdatedAt = &at

	var batchSnap model.Batch
	var subSnap *model.Submission
	if a.journal != nil {
		batchSnap = cur.Clone()
		subSnap = rec.sub.Clone()
	}
	subID := rec.sub.ID
	rolled := rec.sub.Status
	rec.mu.Unlock()

	if rolled != prev {
		a.logger.Info("submission status changed", "submission_id", subID, "from", prev, "to", rolled)
	}
	a.logger.Debug("batch status changed", "batch_id", batchID, "submission_id", subID, "status", to)

	if a.journal != nil {
		if err := a.journal.UpdateBatch(ctx, &batchSnap); err != nil {
			a.logger.Error("journal update batch", "batch_id", batchID, "error", err)
		}
		if err := a.journal.UpdateSubmission(ctx, subSnap); err != nil {
			a.logger.Error("journal update submission", "submission_id", subID, "error", err)
		}
	}
	return nil
}

// recompute derives the rollup, refusing to leave COMPLETED.
func (a *Aggregator) recompute(prev model.RequestStatus, batches []model.Batch) model.RequestStatus {
	if prev == model.RequestStatusCompleted {
		return prev
	}
	return Rollup(a.policy, batchStatuses(batches))
}

// Recompute re-derives the rollup of a submission. LastUpdatedAt moves only
// if the rollup actually changed. Reports whether it changed.
func (a *Aggregator) Recompute(id string, at time.Time) (bool, error) {
	rec, ok := a.lookup(id)
	if !ok {
		return false, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	next := a.recompute(rec.sub.Status, rec.sub.Batches)
	if next == rec.sub.Status {
		return false, nil
	}
	rec.sub.Status = next
	rec.sub.LastUpdatedAt = &at
	return true, nil
}

func (a *Aggregator) lookup(id string) (*record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.records[id]
	return rec, ok
}

// Get returns a snapshot of the submission. Submissions not tracked in memory
// are looked up in the journal, if any.
func (a *Aggregator) Get(ctx context.Context, id string) (*model.Submission, error) {
	if rec, ok := a.lookup(id); ok {
		rec.mu.RLock()
		defer rec.mu.RUnlock()
		return rec.sub.Clone(), nil
	}
	if a.journal != nil {
		sub, err := a.journal.GetSubmission(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("journal get %s: %w", id, err)
		}
		if sub != nil {
			return sub, nil
		}
	}
	return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
}

// Batch returns a snapshot of one batch along with its submission's priority.
func (a *Aggregator) Batch(batchID string) (model.Batch, model.Priority, error) {
	a.mu.RLock()
	rec, ok := a.owners[batchID]
	a.mu.RUnlock()
	if !ok {
		return model.Batch{}, "", fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	for _, b := range rec.sub.Batches {
		if b.ID == batchID {
			return b.Clone(), rec.sub.Priority, nil
		}
	}
	return model.Batch{}, "", fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
}

// Summary returns progress counts for a submission.
func (a *Aggregator) Summary(ctx context.Context, id string) (model.ProgressSummary, error) {
	sub, err := a.Get(ctx, id)
	if err != nil {
		return model.ProgressSummary{}, err
	}
	return model.ComputeProgress(sub), nil
}

// List returns tracked submissions, newest first, filtered and paginated.
// The second return value is the total before pagination.
func (a *Aggregator) List(opts model.ListOptions) ([]*model.Submission, int) {
	opts.Clamp()

	a.mu.RLock()
	recs := make([]*record, 0, len(a.order))
	for i := len(a.order) - 1; i >= 0; i-- {
		recs = append(recs, a.records[a.order[i]])
	}
	a.mu.RUnlock()

	var matched []*model.Submission
	for _, rec := range recs {
		rec.mu.RLock()
		if opts.Status == "" || rec.sub.Status == opts.Status {
			matched = append(matched, rec.sub.Clone())
		}
		rec.mu.RUnlock()
	}

	total := len(matched)
	if opts.Offset >= total {
		return []*model.Submission{}, total
	}
	end := min(opts.Offset+opts.Limit, total)
	return matched[opts.Offset:end], total
}

// Count returns the number of tracked submissions.
func (a *Aggregator) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// FailInterrupted closes out journaled submissions left unfinished by a
// previous process: every non-terminal batch becomes FAILED with reason and
// the rollup is recomputed. Nothing is re-enqueued. Returns the number of
// submissions touched.
func (a *Aggregator) FailInterrupted(ctx context.Context, reason string, at time.Time) (int, error) {
	if a.journal == nil {
		return 0, nil
	}
	subs, err := a.journal.ListUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unfinished: %w", err)
	}
	for _, sub := range subs {
		for i := range sub.Batches {
			b := &sub.Batches[i]
			if b.Status.IsTerminal() {
				continue
			}
			b.Status = model.BatchStatusFailed
			b.Error = reason
			b.CompletedAt = &at
			if err := a.journal.UpdateBatch(ctx, b); err != nil {
				return 0, fmt.Errorf("fail batch %s: %w", b.ID, err)
			}
		}
		sub.Status = Rollup(a.policy, batchStatuses(sub.Batches))
		sub.LastUpdatedAt = &at
		if err := a.journal.UpdateSubmission(ctx, sub); err != nil {
			return 0, fmt.Errorf("update submission %s: %w", sub.ID, err)
		}
		a.logger.Warn("interrupted submission closed", "submission_id", sub.ID, "status", sub.Status)
	}
	return len(subs), nil
}
