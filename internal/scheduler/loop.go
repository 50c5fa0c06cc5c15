package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/me/ingestd/internal/executor"
	"github.com/me/ingestd/internal/queue"
	"github.com/me/ingestd/internal/status"
	"github.com/me/ingestd/pkg/model"
)

// ErrAlreadyRunning is returned by Start while the dispatcher is running.
var ErrAlreadyRunning = errors.New("dispatcher already running")

// Dispatcher is the single worker that drains the queue. Batches run strictly
// one at a time; only the items of the current batch execute concurrently.
type Dispatcher struct {
	queue  *queue.Queue
	agg    *status.Aggregator
	exec   executor.Executor
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	lastStart  time.Time
	dispatched atomic.Uint64
	faults     atomic.Uint64
}

// NewDispatcher creates a dispatcher. A nil now uses time.Now.
func NewDispatcher(q *queue.Queue, agg *status.Aggregator, exec executor.Executor, cfg Config, logger *slog.Logger, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		queue:  q,
		agg:    agg,
		exec:   exec,
		config: cfg,
		logger: logger.With("component", "dispatcher"),
		now:    now,
	}
}

// Start runs the dispatch loop. Blocks until ctx is cancelled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	d.stopCh, d.doneCh = stopCh, doneCh
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		close(doneCh)
	}()

	d.logger.Info("dispatcher started",
		"executor", d.exec.Type(),
		"inter_batch_delay", d.config.InterBatchDelay,
		"item_timeout", d.config.ItemTimeout)

	for {
		// Rate limit: consecutive batch starts are at least InterBatchDelay apart.
		if !d.lastStart.IsZero() {
			wait := d.lastStart.Add(d.config.InterBatchDelay).Sub(d.now())
			if stop, err := d.pause(ctx, stopCh, wait, nil); stop {
				return err
			}
		}

		entry, ok := d.queue.Pop()
		if !ok {
			if stop, err := d.pause(ctx, stopCh, d.config.IdlePoll, d.queue.Notify()); stop {
				return err
			}
			continue
		}

		if err := d.dispatch(ctx, entry); err != nil {
			d.faults.Add(1)
			d.logger.Error("dispatch fault", "batch_id", entry.BatchID, "submission_id", entry.SubmissionID, "error", err)
			d.failBatch(ctx, entry.BatchID, err)
			if stop, err := d.pause(ctx, stopCh, d.config.FaultBackoff, nil); stop {
				return err
			}
		}
	}
}

// pause waits for d, a wake signal, Stop or ctx. stop reports that the loop
// must exit with err.
func (d *Dispatcher) pause(ctx context.Context, stopCh <-chan struct{}, dur time.Duration, wake <-chan struct{}) (stop bool, err error) {
	if dur <= 0 {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping (context cancelled)")
			return true, ctx.Err()
		case <-stopCh:
			d.logger.Info("dispatcher stopping (stop called)")
			return true, nil
		default:
			return false, nil
		}
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		d.logger.Info("dispatcher stopping (context cancelled)")
		return true, ctx.Err()
	case <-stopCh:
		d.logger.Info("dispatcher stopping (stop called)")
		return true, nil
	case <-wake:
	case <-timer.C:
	}
	return false, nil
}

// Stop signals the loop and waits for the in-flight batch to finish.
// Stop on a dispatcher that is not running is a no-op.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	stopCh, doneCh := d.stopCh, d.doneCh
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	d.mu.Unlock()

	<-doneCh
	return nil
}

// Running reports whether the loop is active.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Dispatched returns the number of batches started.
func (d *Dispatcher) Dispatched() uint64 { return d.dispatched.Load() }

// Faults returns the number of recovered dispatcher faults.
func (d *Dispatcher) Faults() uint64 { return d.faults.Load() }

// dispatch runs one batch: TRIGGERED, concurrent fan-out, outcome recorded.
// A started batch runs to completion even if ctx is cancelled.
func (d *Dispatcher) dispatch(ctx context.Context, entry queue.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	b, _, err := d.agg.Batch(entry.BatchID)
	if err != nil {
		return err
	}

	start := d.now()
	d.lastStart = start
	if err := d.agg.MarkTriggered(ctx, b.ID, start); err != nil {
		return fmt.Errorf("mark triggered: %w", err)
	}
	d.dispatched.Add(1)
	d.logger.Info("batch triggered",
		"batch_id", b.ID, "submission_id", entry.SubmissionID, "priority_rank", entry.Rank, "items", b.ItemIDs)

	batchCtx := context.WithoutCancel(ctx)
	results := make(map[int]model.ItemResult, len(b.ItemIDs))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(len(b.ItemIDs))
	for _, id := range b.ItemIDs {
		g.Go(func() error {
			r := d.runItem(batchCtx, id)
			mu.Lock()
			results[id] = r
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if err := d.agg.RecordOutcome(batchCtx, b.ID, results, d.now()); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}

	var failed int
	for _, r := range results {
		if r.Status == model.ItemStatusFailed {
			failed++
		}
	}
	d.logger.Info("batch finished",
		"batch_id", b.ID, "submission_id", entry.SubmissionID, "failed_items", failed, "took", d.now().Sub(start))
	return nil
}

// runItem executes one item, converting errors, timeouts and panics into a
// FAILED result.
func (d *Dispatcher) runItem(ctx context.Context, itemID int) (res model.ItemResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("executor panic", "item_id", itemID, "panic", r)
			res = model.ItemResult{Status: model.ItemStatusFailed, Error: fmt.Sprintf("executor panic: %v", r)}
		}
	}()

	if d.config.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.ItemTimeout)
		defer cancel()
	}

	payload, err := d.exec.Execute(ctx, itemID)
	if err != nil {
		d.logger.Warn("item failed", "item_id", itemID, "error", err)
		return model.ItemResult{Status: model.ItemStatusFailed, Error: err.Error()}
	}
	return model.ItemResult{Status: model.ItemStatusCompleted, Data: payload}
}

// failBatch marks a batch FAILED after a fault. Batches that already reached
// a terminal state are left alone.
func (d *Dispatcher) failBatch(ctx context.Context, batchID string, cause error) {
	err := d.agg.FailBatch(context.WithoutCancel(ctx), batchID, cause.Error(), d.now())
	var terr *model.InvalidTransitionError
	switch {
	case err == nil:
	case errors.As(err, &terr), errors.Is(err, status.ErrNotFound):
		d.logger.Debug("fault on settled batch", "batch_id", batchID, "error", err)
	default:
		d.logger.Error("fail batch", "batch_id", batchID, "error", err)
	}
}
