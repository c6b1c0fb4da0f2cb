package mock

import (
	"context"
	"time"

	"github.com/usefocal/focal"
)

var _ focal.VectorStore = (*VectorStore)(nil)

// VectorStore is a mock implementation of focal.VectorStore.
type VectorStore struct {
	UpsertDocumentFn   func(ctx context.Context, req focal.UpsertRequest) (*focal.UpsertResult, error)
	SearchFn           func(ctx context.Context, query string, k int, filters map[string]string) ([]focal.VectorHit, error)
	IndexFromPendingFn func(ctx context.Context, rec *focal.PendingVector) error
}

func (s *VectorStore) UpsertDocument(ctx context.Context, req focal.UpsertRequest) (*focal.UpsertResult, error) {
	return s.UpsertDocumentFn(ctx, req)
}

func (s *VectorStore) Search(ctx context.Context, query string, k int, filters map[string]string) ([]focal.VectorHit, error) {
	return s.SearchFn(ctx, query, k, filters)
}

func (s *VectorStore) IndexFromPending(ctx context.Context, rec *focal.PendingVector) error {
	return s.IndexFromPendingFn(ctx, rec)
}

var _ focal.Chunker = (*Chunker)(nil)

// Chunker is a mock implementation of focal.Chunker.
type Chunker struct {
	ChunkFn func(text string) ([]focal.Chunk, error)
}

func (c *Chunker) Chunk(text string) ([]focal.Chunk, error) {
	return c.ChunkFn(text)
}

var _ focal.PendingQueue = (*PendingQueue)(nil)

// PendingQueue is a mock implementation of focal.PendingQueue.
type PendingQueue struct {
	EnqueueFn    func(ctx context.Context, rec *focal.PendingVector) error
	PopFn        func(ctx context.Context, n int, now time.Time) ([]*focal.PendingVector, error)
	ClearFn      func(ctx context.Context, docID string) error
	RescheduleFn func(ctx context.Context, docID string, attempts int, nextAttemptAt time.Time) error
	LenFn        func(ctx context.Context) (int, error)
}

func (q *PendingQueue) Enqueue(ctx context.Context, rec *focal.PendingVector) error {
	return q.EnqueueFn(ctx, rec)
}

func (q *PendingQueue) Pop(ctx context.Context, n int, now time.Time) ([]*focal.PendingVector, error) {
	return q.PopFn(ctx, n, now)
}

func (q *PendingQueue) Clear(ctx context.Context, docID string) error {
	return q.ClearFn(ctx, docID)
}

func (q *PendingQueue) Reschedule(ctx context.Context, docID string, attempts int, nextAttemptAt time.Time) error {
	return q.RescheduleFn(ctx, docID, attempts, nextAttemptAt)
}

func (q *PendingQueue) Len(ctx context.Context) (int, error) {
	return q.LenFn(ctx)
}
