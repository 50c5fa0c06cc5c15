package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/ingestd/internal/batch"
	"github.com/me/ingestd/internal/executor"
	"github.com/me/ingestd/internal/idempotency"
	"github.com/me/ingestd/internal/queue"
	"github.com/me/ingestd/internal/status"
	"github.com/me/ingestd/pkg/model"
)

// ErrInvalidSubmission wraps intake bodies the scheduler refuses.
var ErrInvalidSubmission = errors.New("invalid submission")

// Config holds scheduler configuration.
type Config struct {
	BatchSize       int
	InterBatchDelay time.Duration // minimum time between consecutive batch starts
	IdlePoll        time.Duration // re-check interval while the queue is empty
	FaultBackoff    time.Duration // pause after a dispatcher fault
	ItemTimeout     time.Duration // per-item executor deadline; 0 disables it
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:       batch.DefaultCapacity,
		InterBatchDelay: 5 * time.Second,
		IdlePoll:        100 * time.Millisecond,
		FaultBackoff:    time.Second,
	}
}

// SubmitResult is the outcome of an intake call.
type SubmitResult struct {
	SubmissionID string
	Status       model.RequestStatus
	Duplicate    bool // an identical body was accepted inside the idempotency window
}

// Scheduler owns the intake path and the dispatcher. It is the single
// scheduling authority of the process.
type Scheduler struct {
	cfg        Config
	cache      idempotency.Cache
	queue      *queue.Queue
	agg        *status.Aggregator
	dispatcher *Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used for idempotency and status timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New wires a Scheduler. The dispatcher is created but not started.
func New(cfg Config, cache idempotency.Cache, agg *status.Aggregator, exec executor.Executor, logger *slog.Logger, opts ...Option) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = batch.DefaultCapacity
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = DefaultConfig().IdlePoll
	}
	s := &Scheduler{
		cfg:    cfg,
		cache:  cache,
		queue:  queue.New(),
		agg:    agg,
		logger: logger.With("component", "scheduler"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dispatcher = NewDispatcher(s.queue, agg, exec, cfg, logger, s.now)
	return s
}

// Submit accepts an intake body. A body identical to one accepted within the
// idempotency window returns the earlier submission ID with Duplicate set.
// Otherwise the items are split, registered as PENDING and enqueued before
// the fingerprint is published, so concurrent duplicates never see an ID
// whose batches are not yet queued.
func (s *Scheduler) Submit(ctx context.Context, itemIDs []int, priority model.Priority) (SubmitResult, error) {
	if len(itemIDs) == 0 {
		return SubmitResult{}, fmt.Errorf("%w: item_ids must not be empty", ErrInvalidSubmission)
	}
	if priority.Rank() == 0 {
		return SubmitResult{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidSubmission, priority)
	}

	fp := idempotency.Fingerprint(itemIDs, string(priority))
	now := s.now()

	lookup, err := s.cache.LookupOrReserve(ctx, fp, now)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("idempotency lookup: %w", err)
	}
	if lookup.Existing {
		res := SubmitResult{SubmissionID: lookup.SubmissionID, Duplicate: true, Status: model.RequestStatusPending}
		if sub, err := s.agg.Get(ctx, lookup.SubmissionID); err == nil {
			res.Status = sub.Status
		}
		s.logger.Info("duplicate submission", "submission_id", lookup.SubmissionID, "fingerprint", fp)
		return res, nil
	}

	id := "sub_" + uuid.New().String()
	batches, err := batch.Split(id, itemIDs, s.cfg.BatchSize)
	if err != nil {
		s.release(ctx, fp)
		return SubmitResult{}, fmt.Errorf("split: %w", err)
	}

	sub := &model.Submission{
		ID:        id,
		ItemIDs:   append([]int(nil), itemIDs...),
		Priority:  priority,
		Status:    model.RequestStatusPending,
		CreatedAt: now.UTC(),
		Batches:   batches,
	}
	if err := s.agg.Register(ctx, sub); err != nil {
		s.release(ctx, fp)
		return SubmitResult{}, fmt.Errorf("register: %w", err)
	}

	for _, b := range batches {
		s.queue.Push(priority.Rank(), b.ID, id)
	}

	if err := s.cache.Commit(ctx, fp, id, now); err != nil {
		// The batches are queued already; only duplicate suppression is lost.
		s.logger.Error("idempotency commit", "submission_id", id, "error", err)
		s.release(ctx, fp)
	}

	s.logger.Info("submission accepted",
		"submission_id", id, "priority", priority, "items", len(itemIDs), "batches", len(batches))
	return SubmitResult{SubmissionID: id, Status: model.RequestStatusPending}, nil
}

func (s *Scheduler) release(ctx context.Context, fp string) {
	if err := s.cache.Release(ctx, fp); err != nil {
		s.logger.Error("idempotency release", "fingerprint", fp, "error", err)
	}
}

// Start runs the dispatcher. Blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	return s.dispatcher.Start(ctx)
}

// Stop halts the dispatcher and waits for the in-flight batch to finish.
func (s *Scheduler) Stop() error {
	return s.dispatcher.Stop()
}

// Status returns a snapshot of a submission.
func (s *Scheduler) Status(ctx context.Context, id string) (*model.Submission, error) {
	return s.agg.Get(ctx, id)
}

// Aggregator exposes the status aggregator for read paths.
func (s *Scheduler) Aggregator() *status.Aggregator { return s.agg }

// QueueDepth returns the number of batches waiting for dispatch.
func (s *Scheduler) QueueDepth() int { return s.queue.Len() }

// Dispatcher exposes the dispatcher for health reporting.
func (s *Scheduler) Dispatcher() *Dispatcher { return s.dispatcher }
