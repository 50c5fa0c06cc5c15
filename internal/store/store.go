package store

import (
	"context"

	"github.com/me/ingestd/pkg/model"
)

// Store is the status journal: a durable copy of submissions and batches.
// Get methods return nil, nil when the entity does not exist.
type Store interface {
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	ListSubmissions(ctx context.Context, opts model.ListOptions) ([]*model.Submission, int, error)
	UpdateSubmission(ctx context.Context, sub *model.Submission) error

	UpdateBatch(ctx context.Context, b *model.Batch) error
	ListBatchesBySubmission(ctx context.Context, submissionID string) ([]model.Batch, error)

	// ListUnfinished returns submissions that still have a non-terminal batch.
	ListUnfinished(ctx context.Context) ([]*model.Submission, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
