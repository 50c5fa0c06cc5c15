// Package queue holds batches waiting for dispatch, ordered by priority and
// then by enqueue order.
package queue

import (
	"container/heap"
	"sync"
)

// Entry is one queued batch. The queue never looks past Rank and Seq.
type Entry struct {
	Rank         int
	Seq          uint64
	BatchID      string
	SubmissionID string
}

// less orders higher rank first, then earlier sequence.
func less(a, b Entry) bool {
	if a.Rank != b.Rank {
		return a.Rank > b.Rank
	}
	return a.Seq < b.Seq
}

type entryHeap []Entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return less(h[i], h[j]) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)        { *h = append(*h, x.(Entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Queue is a mutex-guarded priority queue. It is unbounded.
type Queue struct {
	mu     sync.Mutex
	items  entryHeap
	seq    uint64
	notify chan struct{}
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push enqueues a batch and assigns it the next sequence number.
func (q *Queue) Push(rank int, batchID, submissionID string) Entry {
	q.mu.Lock()
	q.seq++
	e := Entry{Rank: rank, Seq: q.seq, BatchID: batchID, SubmissionID: submissionID}
	heap.Push(&q.items, e)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return e
}

// Pop removes the highest-priority entry. ok is false when the queue is empty.
func (q *Queue) Pop() (e Entry, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Entry{}, false
	}
	return heap.Pop(&q.items).(Entry), true
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Notify receives after a Push. Signals coalesce, so a receiver must drain
// the queue with Pop rather than count notifications.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}
