package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]int{1, 2, 3}, "HIGH")
	if len(a) != 16 {
		t.Fatalf("len(fingerprint) = %d, want 16", len(a))
	}
	if b := Fingerprint([]int{1, 2, 3}, "HIGH"); a != b {
		t.Errorf("same body gave different fingerprints: %s vs %s", a, b)
	}
	tests := []struct {
		name     string
		items    []int
		priority string
	}{
		{"reordered items", []int{3, 2, 1}, "HIGH"},
		{"other priority", []int{1, 2, 3}, "LOW"},
		{"extra item", []int{1, 2, 3, 4}, "HIGH"},
	}
	for _, tt := range tests {
		if got := Fingerprint(tt.items, tt.priority); got == a {
			t.Errorf("%s: fingerprint collided with original", tt.name)
		}
	}
}

func TestMemoryCache_ReserveCommitLookup(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	got, err := c.LookupOrReserve(ctx, "fp", now)
	if err != nil {
		t.Fatalf("LookupOrReserve: %v", err)
	}
	if got.Existing {
		t.Fatal("first lookup should reserve")
	}
	if err := c.Commit(ctx, "fp", "sub_1", now); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err = c.LookupOrReserve(ctx, "fp", now.Add(59*time.Second))
	if err != nil {
		t.Fatalf("LookupOrReserve: %v", err)
	}
	if !got.Existing || got.SubmissionID != "sub_1" {
		t.Errorf("lookup inside window = %+v, want existing sub_1", got)
	}
}

func TestMemoryCache_WindowExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, err := c.LookupOrReserve(ctx, "fp", now); err != nil {
		t.Fatal(err)
	}
	c.Commit(ctx, "fp", "sub_1", now)

	// Exactly at the window boundary the entry is expired.
	got, err := c.LookupOrReserve(ctx, "fp", now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if got.Existing {
		t.Fatalf("lookup at window edge = %+v, want reservation", got)
	}
	c.Commit(ctx, "fp", "sub_2", now.Add(time.Minute))

	got, _ = c.LookupOrReserve(ctx, "fp", now.Add(90*time.Second))
	if got.SubmissionID != "sub_2" {
		t.Errorf("SubmissionID = %q, want sub_2 (overwritten)", got.SubmissionID)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestMemoryCache_Release(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	if c.Window() != DefaultWindow {
		t.Errorf("Window = %v, want default", c.Window())
	}
	now := time.Now()

	c.LookupOrReserve(ctx, "fp", now)
	c.Release(ctx, "fp")

	got, err := c.LookupOrReserve(ctx, "fp", now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Existing {
		t.Error("released fingerprint should be reservable again")
	}
}

func TestMemoryCache_ConcurrentSingleReservation(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	now := time.Now()

	const n = 5
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
		ids      = make([]string, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := c.LookupOrReserve(ctx, "fp", now)
			if err != nil {
				t.Error(err)
				return
			}
			if got.Existing {
				ids[i] = got.SubmissionID
				return
			}
			mu.Lock()
			reserved++
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			c.Commit(ctx, "fp", "sub_winner", now)
			ids[i] = "sub_winner"
		}(i)
	}
	wg.Wait()

	if reserved != 1 {
		t.Errorf("reservations = %d, want 1", reserved)
	}
	for i, id := range ids {
		if id != "sub_winner" {
			t.Errorf("caller %d got %q, want sub_winner", i, id)
		}
	}
}

func TestMemoryCache_WaitHonorsContext(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Now()
	c.LookupOrReserve(context.Background(), "fp", now)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.LookupOrReserve(ctx, "fp", now); err == nil {
		t.Error("expected context error while reservation is held")
	}
}
