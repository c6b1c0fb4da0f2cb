package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/usefocal/focal"
)

// Compile-time interface verification.
var _ focal.PendingQueue = (*PendingQueue)(nil)

// PendingQueue implements focal.PendingQueue in the app-state database.
// Chunks are precomputed at enqueue time, so a drained row needs only the
// embed+store step.
type PendingQueue struct {
	mu sync.Mutex
	db *DB
}

// NewPendingQueue creates the queue and ensures its schema.
func NewPendingQueue(db *DB) (*PendingQueue, error) {
	q := &PendingQueue{db: db}
	if err := q.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create pending-vectors schema: %w", err)
	}
	return q, nil
}

func (q *PendingQueue) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS pending_vectors (
			doc_id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			resolved_title TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			simhash TEXT NOT NULL DEFAULT '',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			chunks_json TEXT NOT NULL DEFAULT '[]',
			attempts INTEGER NOT NULL DEFAULT 0,
			next_attempt_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_pending_next_attempt ON pending_vectors(next_attempt_at);
	`

	_, err := q.db.db.Exec(schema)
	return err
}

// Enqueue upserts a row keyed by DocID. Re-enqueueing refreshes the
// payload and schedule but keeps the original created_at.
func (q *PendingQueue) Enqueue(ctx context.Context, rec *focal.PendingVector) error {
	if rec.DocID == "" {
		return focal.Errorf(focal.EINVALID, "pending vector doc_id required")
	}

	now := time.Now().UTC()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	nextAttempt := rec.NextAttemptAt
	if nextAttempt.IsZero() {
		nextAttempt = now
	}

	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	chunks, err := json.Marshal(rec.Chunks)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO pending_vectors (doc_id, job_id, url, title, resolved_title, content_hash, simhash, metadata_json, chunks_json, attempts, next_attempt_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			job_id = excluded.job_id,
			url = excluded.url,
			title = excluded.title,
			resolved_title = excluded.resolved_title,
			content_hash = excluded.content_hash,
			simhash = excluded.simhash,
			metadata_json = excluded.metadata_json,
			chunks_json = excluded.chunks_json,
			attempts = excluded.attempts,
			next_attempt_at = excluded.next_attempt_at,
			updated_at = excluded.updated_at
	`, rec.DocID, rec.JobID, rec.URL, rec.Title, rec.ResolvedTitle, rec.ContentHash,
		formatSimHash(rec.SimHash), string(metadata), string(chunks), rec.Attempts,
		formatTime(nextAttempt), formatTime(createdAt), formatTime(now))
	return err
}

// Pop returns up to n rows whose NextAttemptAt is due, lowest first. Rows
// stay queued until Clear or Reschedule; the single worker guarantees
// at-most-once processing per (doc_id, content_hash).
func (q *PendingQueue) Pop(ctx context.Context, n int, now time.Time) ([]*focal.PendingVector, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT doc_id, job_id, url, title, resolved_title, content_hash, simhash, metadata_json, chunks_json, attempts, next_attempt_at, created_at, updated_at
		FROM pending_vectors
		WHERE next_attempt_at <= ?
		ORDER BY next_attempt_at ASC, created_at ASC
		LIMIT ?
	`, formatTime(now), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*focal.PendingVector
	for rows.Next() {
		var rec focal.PendingVector
		var simhash, metadata, chunks, nextAttempt, createdAt, updatedAt string
		if err := rows.Scan(&rec.DocID, &rec.JobID, &rec.URL, &rec.Title, &rec.ResolvedTitle,
			&rec.ContentHash, &simhash, &metadata, &chunks, &rec.Attempts,
			&nextAttempt, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rec.SimHash = parsePendingSimHash(simhash)
		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", rec.DocID, err)
		}
		if err := json.Unmarshal([]byte(chunks), &rec.Chunks); err != nil {
			return nil, fmt.Errorf("failed to decode chunks for %s: %w", rec.DocID, err)
		}
		rec.NextAttemptAt = parseTime(nextAttempt)
		rec.CreatedAt = parseTime(createdAt)
		rec.UpdatedAt = parseTime(updatedAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Clear removes a row after successful indexing.
func (q *PendingQueue) Clear(ctx context.Context, docID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, err := q.db.ExecContext(ctx, `DELETE FROM pending_vectors WHERE doc_id = ?`, docID)
	return err
}

// Reschedule pushes a row's next attempt into the future and records the
// new attempt count.
func (q *PendingQueue) Reschedule(ctx context.Context, docID string, attempts int, nextAttemptAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	res, err := q.db.ExecContext(ctx, `
		UPDATE pending_vectors
		SET attempts = ?, next_attempt_at = ?, updated_at = ?
		WHERE doc_id = ?
	`, attempts, formatTime(nextAttemptAt), formatTime(time.Now().UTC()), docID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return focal.Errorf(focal.ENOTFOUND, "pending vector not found")
	}
	return nil
}

// Len returns the number of queued rows.
func (q *PendingQueue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_vectors`).Scan(&n)
	return n, err
}

// parsePendingSimHash parses a stored signature, zero on empty or
// malformed.
func parsePendingSimHash(s string) uint64 {
	if s == "" {
		return 0
	}
	h, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return h
}
