package focal

import (
	"context"
	"time"
)

// PendingVector is a document parked for embedding after the embedder was
// unavailable. Chunks are already computed; only the embed+store step
// remains.
type PendingVector struct {
	DocID         string            `json:"doc_id"`
	JobID         string            `json:"job_id,omitempty"`
	URL           string            `json:"url,omitempty"`
	Title         string            `json:"title,omitempty"`
	ResolvedTitle string            `json:"resolved_title,omitempty"`
	ContentHash   string            `json:"content_hash"`
	SimHash       uint64            `json:"simhash"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Chunks        []Chunk           `json:"chunks"`
	Attempts      int               `json:"attempts"`
	NextAttemptAt time.Time         `json:"next_attempt_at"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// PendingQueue is the durable FIFO of documents awaiting embedding.
// Ordering is by NextAttemptAt.
type PendingQueue interface {
	// Enqueue upserts a row keyed by DocID.
	Enqueue(ctx context.Context, rec *PendingVector) error

	// Pop returns up to n rows whose NextAttemptAt is due, lowest first.
	// Rows stay in the queue until Clear or Reschedule.
	Pop(ctx context.Context, n int, now time.Time) ([]*PendingVector, error)

	// Clear removes a row after successful indexing.
	Clear(ctx context.Context, docID string) error

	// Reschedule pushes a row's next attempt into the future and records
	// the new attempt count.
	Reschedule(ctx context.Context, docID string, attempts int, nextAttemptAt time.Time) error

	// Len returns the number of queued rows.
	Len(ctx context.Context) (int, error)
}
