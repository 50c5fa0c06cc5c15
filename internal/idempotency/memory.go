package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache. Expired entries are overwritten lazily
// on the next reservation of the same fingerprint.
type MemoryCache struct {
	window time.Duration

	mu       sync.Mutex
	entries  map[string]Entry
	inflight map[string]chan struct{}
}

// NewMemoryCache creates a MemoryCache with the given window. A non-positive
// window selects DefaultWindow.
func NewMemoryCache(window time.Duration) *MemoryCache {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryCache{
		window:   window,
		entries:  make(map[string]Entry),
		inflight: make(map[string]chan struct{}),
	}
}

// Window returns the configured idempotency window.
func (c *MemoryCache) Window() time.Duration { return c.window }

// LookupOrReserve returns the live submission ID for fingerprint, or reserves
// it for the caller. Callers racing on a held reservation block until it is
// committed or released.
func (c *MemoryCache) LookupOrReserve(ctx context.Context, fingerprint string, now time.Time) (Lookup, error) {
	for {
		c.mu.Lock()
		if e, ok := c.entries[fingerprint]; ok && !e.Expired(now, c.window) {
			c.mu.Unlock()
			return Lookup{Existing: true, SubmissionID: e.SubmissionID}, nil
		}
		wait, held := c.inflight[fingerprint]
		if !held {
			c.inflight[fingerprint] = make(chan struct{})
			c.mu.Unlock()
			return Lookup{}, nil
		}
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return Lookup{}, ctx.Err()
		}
	}
}

// Commit publishes the mapping and wakes any waiters.
func (c *MemoryCache) Commit(_ context.Context, fingerprint, submissionID string, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = Entry{Fingerprint: fingerprint, SubmissionID: submissionID, IssuedAt: now}
	c.finish(fingerprint)
	return nil
}

// Release drops a reservation without publishing anything.
func (c *MemoryCache) Release(_ context.Context, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish(fingerprint)
	return nil
}

func (c *MemoryCache) finish(fingerprint string) {
	if ch, ok := c.inflight[fingerprint]; ok {
		close(ch)
		delete(c.inflight, fingerprint)
	}
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
