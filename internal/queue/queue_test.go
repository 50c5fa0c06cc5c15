package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestQueue_PriorityThenFIFO(t *testing.T) {
	q := New()
	q.Push(2, "m1", "s1")
	q.Push(1, "l1", "s2")
	q.Push(3, "h1", "s3")
	q.Push(2, "m2", "s1")
	q.Push(3, "h2", "s3")
	q.Push(1, "l2", "s2")

	want := []string{"h1", "h2", "m1", "m2", "l1", "l2"}
	for i, id := range want {
		e, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if e.BatchID != id {
			t.Errorf("pop %d = %s, want %s", i, e.BatchID, id)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("expected empty queue")
	}
}

func TestQueue_SeqMonotonic(t *testing.T) {
	q := New()
	var last uint64
	for i := 0; i < 10; i++ {
		e := q.Push(1, fmt.Sprint(i), "s")
		if e.Seq <= last {
			t.Fatalf("seq %d not greater than %d", e.Seq, last)
		}
		last = e.Seq
	}
	if q.Len() != 10 {
		t.Errorf("Len = %d, want 10", q.Len())
	}
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Push(i%3+1, fmt.Sprint(i), "s")
		}(i)
	}
	wg.Wait()

	var prev Entry
	for i := 0; ; i++ {
		e, ok := q.Pop()
		if !ok {
			if i != 50 {
				t.Errorf("popped %d, want 50", i)
			}
			break
		}
		if i > 0 && less(e, prev) {
			t.Errorf("entry %+v popped after %+v", e, prev)
		}
		prev = e
	}
}

func TestQueue_Notify(t *testing.T) {
	q := New()
	select {
	case <-q.Notify():
		t.Fatal("notify fired on empty queue")
	default:
	}

	q.Push(1, "a", "s")
	q.Push(1, "b", "s")
	select {
	case <-q.Notify():
	case <-time.After(time.Second):
		t.Fatal("notify did not fire after push")
	}
	// Pushes coalesce into one signal.
	select {
	case <-q.Notify():
		t.Error("expected a single coalesced signal")
	default:
	}
}
