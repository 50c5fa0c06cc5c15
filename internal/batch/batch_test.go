package batch

import (
	"errors"
	"slices"
	"testing"

	"github.com/me/ingestd/pkg/model"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name     string
		ids      []int
		capacity int
		want     [][]int
	}{
		{"exact multiple", []int{1, 2, 3, 4, 5, 6}, 3, [][]int{{1, 2, 3}, {4, 5, 6}}},
		{"remainder", []int{1, 2, 3, 4, 5}, 3, [][]int{{1, 2, 3}, {4, 5}}},
		{"single short", []int{9}, 3, [][]int{{9}}},
		{"capacity one", []int{4, 5}, 1, [][]int{{4}, {5}}},
		{"duplicates kept", []int{7, 7, 7, 7}, 3, [][]int{{7, 7, 7}, {7}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Chunk(tt.ids, tt.capacity)
			if err != nil {
				t.Fatalf("Chunk: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d (%v)", len(got), len(tt.want), got)
			}
			for i := range got {
				if !slices.Equal(got[i], tt.want[i]) {
					t.Errorf("chunk %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunk_ConcatenationRestoresInput(t *testing.T) {
	ids := make([]int, 0, 100)
	for i := 0; i < 100; i++ {
		ids = append(ids, i*7%13)
	}
	for capacity := 1; capacity <= 11; capacity++ {
		chunks, err := Chunk(ids, capacity)
		if err != nil {
			t.Fatal(err)
		}
		wantLen := (len(ids) + capacity - 1) / capacity
		if len(chunks) != wantLen {
			t.Errorf("capacity %d: %d chunks, want %d", capacity, len(chunks), wantLen)
		}
		var joined []int
		for i, c := range chunks {
			if len(c) == 0 || len(c) > capacity {
				t.Errorf("capacity %d: chunk %d has %d items", capacity, i, len(c))
			}
			if i < len(chunks)-1 && len(c) != capacity {
				t.Errorf("capacity %d: non-final chunk %d is short", capacity, i)
			}
			joined = append(joined, c...)
		}
		if !slices.Equal(joined, ids) {
			t.Errorf("capacity %d: concatenation differs from input", capacity)
		}
	}
}

func TestChunk_Errors(t *testing.T) {
	if _, err := Chunk(nil, 3); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty ids: err = %v, want ErrEmpty", err)
	}
	if _, err := Chunk([]int{1}, 0); !errors.Is(err, ErrCapacity) {
		t.Errorf("zero capacity: err = %v, want ErrCapacity", err)
	}
}

func TestSplit(t *testing.T) {
	ids := []int{1, 2, 3, 4, 5}
	batches, err := Split("sub_1", ids, DefaultCapacity)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("len = %d, want 2", len(batches))
	}
	seen := map[string]bool{}
	for i, b := range batches {
		if b.SubmissionID != "sub_1" || b.Seq != i {
			t.Errorf("batch %d: submission=%q seq=%d", i, b.SubmissionID, b.Seq)
		}
		if b.Status != model.BatchStatusPending {
			t.Errorf("batch %d status = %s, want PENDING", i, b.Status)
		}
		if seen[b.ID] {
			t.Errorf("duplicate batch id %s", b.ID)
		}
		seen[b.ID] = true
	}

	// Batches must not alias the caller's slice.
	ids[0] = 100
	if batches[0].ItemIDs[0] != 1 {
		t.Error("batch ItemIDs alias the input slice")
	}
}
