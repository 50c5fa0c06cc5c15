// Package batch splits a submission's item IDs into fixed-capacity batches.
package batch

import (
	"errors"
	"slices"

	"github.com/google/uuid"

	"github.com/me/ingestd/pkg/model"
)

// DefaultCapacity is the maximum number of items per batch.
const DefaultCapacity = 3

var (
	ErrEmpty    = errors.New("batch: no item ids")
	ErrCapacity = errors.New("batch: capacity must be positive")
)

// Chunk partitions ids into ceil(len/capacity) consecutive slices. Every
// slice but the last has exactly capacity elements; none is empty.
func Chunk(ids []int, capacity int) ([][]int, error) {
	if capacity <= 0 {
		return nil, ErrCapacity
	}
	if len(ids) == 0 {
		return nil, ErrEmpty
	}
	out := make([][]int, 0, (len(ids)+capacity-1)/capacity)
	for chunk := range slices.Chunk(ids, capacity) {
		out = append(out, slices.Clone(chunk))
	}
	return out, nil
}

// Split builds PENDING batches for a submission, in item order.
func Split(submissionID string, ids []int, capacity int) ([]model.Batch, error) {
	chunks, err := Chunk(ids, capacity)
	if err != nil {
		return nil, err
	}
	batches := make([]model.Batch, len(chunks))
	for i, chunk := range chunks {
		batches[i] = model.Batch{
			ID:           "batch_" + uuid.New().String(),
			SubmissionID: submissionID,
			Seq:          i,
			ItemIDs:      chunk,
			Status:       model.BatchStatusPending,
		}
	}
	return batches, nil
}
