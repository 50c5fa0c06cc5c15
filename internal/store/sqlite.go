package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/ingestd/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Each :memory: connection is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Submissions ---

// CreateSubmission inserts the submission and all of its batches in one transaction.
func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	s.logger.Debug("sql", "op", "insert", "table", "submissions", "id", sub.ID)

	itemsJSON, err := json.Marshal(sub.ItemIDs)
	if err != nil {
		return fmt.Errorf("marshal item_ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO submissions (id, item_ids, priority, status, created_at, last_updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID, string(itemsJSON), string(sub.Priority), string(sub.Status),
		sub.CreatedAt.UTC().Format(time.RFC3339Nano), formatTimePtr(sub.LastUpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	for i := range sub.Batches {
		b := &sub.Batches[i]
		batchItems, err := json.Marshal(b.ItemIDs)
		if err != nil {
			return fmt.Errorf("marshal batch item_ids: %w", err)
		}
		results, err := marshalResults(b.Results)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO batches (id, submission_id, seq, item_ids, status, results, error, started_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, sub.ID, b.Seq, string(batchItems), string(b.Status), results, b.Error,
			formatTimePtr(b.StartedAt), formatTimePtr(b.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("insert batch %s: %w", b.ID, err)
		}
	}

	return tx.Commit()
}

// GetSubmission returns the submission with its batches, or nil if absent.
func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	s.logger.Debug("sql", "op", "select", "table", "submissions", "id", id)

	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT id, item_ids, priority, status, created_at, last_updated_at
		 FROM submissions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	batches, err := s.ListBatchesBySubmission(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	sub.Batches = batches
	return sub, nil
}

// ListSubmissions returns submissions newest first without their batches.
func (s *SQLiteStore) ListSubmissions(ctx context.Context, opts model.ListOptions) ([]*model.Submission, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "submissions", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := ""
	var args []any
	if opts.Status != "" {
		whereSQL = " WHERE status = ?"
		args = append(args, string(opts.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_ids, priority, status, created_at, last_updated_at
		 FROM submissions`+whereSQL+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var subs []*model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, sub)
	}
	return subs, total, rows.Err()
}

// UpdateSubmission writes the rollup status and last-updated time.
func (s *SQLiteStore) UpdateSubmission(ctx context.Context, sub *model.Submission) error {
	s.logger.Debug("sql", "op", "update", "table", "submissions", "id", sub.ID, "status", sub.Status)

	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET status = ?, last_updated_at = ? WHERE id = ?`,
		string(sub.Status), formatTimePtr(sub.LastUpdatedAt), sub.ID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, "submission", sub.ID)
}

// --- Batches ---

// UpdateBatch writes a batch's status, results and timestamps.
func (s *SQLiteStore) UpdateBatch(ctx context.Context, b *model.Batch) error {
	s.logger.Debug("sql", "op", "update", "table", "batches", "id", b.ID, "status", b.Status)

	results, err := marshalResults(b.Results)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, results = ?, error = ?, started_at = ?, completed_at = ? WHERE id = ?`,
		string(b.Status), results, b.Error, formatTimePtr(b.StartedAt), formatTimePtr(b.CompletedAt), b.ID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, "batch", b.ID)
}

// ListBatchesBySubmission returns a submission's batches in split order.
func (s *SQLiteStore) ListBatchesBySubmission(ctx context.Context, submissionID string) ([]model.Batch, error) {
	s.logger.Debug("sql", "op", "list", "table", "batches", "submission_id", submissionID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, submission_id, seq, item_ids, status, results, error, started_at, completed_at
		 FROM batches WHERE submission_id = ? ORDER BY seq`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		var b model.Batch
		var itemsJSON, resultsJSON, status string
		var startedAt, completedAt *string
		if err := rows.Scan(&b.ID, &b.SubmissionID, &b.Seq, &itemsJSON, &status, &resultsJSON,
			&b.Error, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		b.Status = model.BatchStatus(status)
		if err := json.Unmarshal([]byte(itemsJSON), &b.ItemIDs); err != nil {
			return nil, fmt.Errorf("unmarshal batch item_ids: %w", err)
		}
		if err := json.Unmarshal([]byte(resultsJSON), &b.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
		if len(b.Results) == 0 {
			b.Results = nil
		}
		b.StartedAt = parseTimePtr(startedAt)
		b.CompletedAt = parseTimePtr(completedAt)
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListUnfinished returns submissions that still own a PENDING or TRIGGERED batch.
func (s *SQLiteStore) ListUnfinished(ctx context.Context) ([]*model.Submission, error) {
	s.logger.Debug("sql", "op", "list_unfinished", "table", "batches")

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT submission_id FROM batches WHERE status IN (?, ?)`,
		string(model.BatchStatusPending), string(model.BatchStatusTriggered))
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	subs := make([]*model.Submission, 0, len(ids))
	for _, id := range ids {
		sub, err := s.GetSubmission(ctx, id)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// --- helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (*model.Submission, error) {
	var sub model.Submission
	var itemsJSON, priority, status, createdAt string
	var lastUpdated *string
	if err := row.Scan(&sub.ID, &itemsJSON, &priority, &status, &createdAt, &lastUpdated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(itemsJSON), &sub.ItemIDs); err != nil {
		return nil, fmt.Errorf("unmarshal item_ids: %w", err)
	}
	sub.Priority = model.Priority(priority)
	sub.Status = model.RequestStatus(status)
	sub.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sub.LastUpdatedAt = parseTimePtr(lastUpdated)
	sub.Batches = []model.Batch{}
	return &sub, nil
}

func marshalResults(results map[int]model.ItemResult) (string, error) {
	if results == nil {
		return "{}", nil
	}
	data, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}

func expectOneRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", entity, id)
	}
	return nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	return &t
}
