package crawl_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usefocal/focal"
	"github.com/usefocal/focal/crawl"
	"github.com/usefocal/focal/mock"
)

func pendingRec(docID string) *focal.PendingVector {
	return &focal.PendingVector{
		DocID:       docID,
		URL:         "https://example.com/" + docID,
		ContentHash: "sha256:abc",
		Chunks:      []focal.Chunk{{Text: "chunk text", TokenCount: 2}},
	}
}

func TestPendingWorker(t *testing.T) {
	t.Parallel()

	t.Run("SuccessClearsRow", func(t *testing.T) {
		t.Parallel()

		var cleared []string
		queue := &mock.PendingQueue{
			PopFn: func(ctx context.Context, n int, now time.Time) ([]*focal.PendingVector, error) {
				return []*focal.PendingVector{pendingRec("doc-1"), pendingRec("doc-2")}, nil
			},
			ClearFn: func(ctx context.Context, docID string) error {
				cleared = append(cleared, docID)
				return nil
			},
		}
		vectors := &mock.VectorStore{
			IndexFromPendingFn: func(ctx context.Context, rec *focal.PendingVector) error { return nil },
		}

		w := crawl.NewPendingWorker(queue, vectors)
		n := w.DrainOnce(context.Background())
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{"doc-1", "doc-2"}, cleared)
	})

	t.Run("EmbedderStillDownReschedulesWithBackoff", func(t *testing.T) {
		t.Parallel()

		rec := pendingRec("doc-1")
		rec.Attempts = 2

		var gotAttempts int
		var gotNext time.Time
		var popNow time.Time
		queue := &mock.PendingQueue{
			PopFn: func(ctx context.Context, n int, now time.Time) ([]*focal.PendingVector, error) {
				popNow = now
				return []*focal.PendingVector{rec}, nil
			},
			RescheduleFn: func(ctx context.Context, docID string, attempts int, nextAttemptAt time.Time) error {
				gotAttempts = attempts
				gotNext = nextAttemptAt
				return nil
			},
		}
		vectors := &mock.VectorStore{
			IndexFromPendingFn: func(ctx context.Context, rec *focal.PendingVector) error {
				return &focal.EmbedderUnavailableError{Model: "nomic-embed-text", Detail: "connection refused"}
			},
		}

		w := crawl.NewPendingWorker(queue, vectors, crawl.WithPendingInterval(time.Second))
		n := w.DrainOnce(context.Background())
		assert.Equal(t, 1, n)

		assert.Equal(t, 3, gotAttempts)
		// Two prior attempts back off to interval << 2.
		assert.Equal(t, popNow.Add(4*time.Second), gotNext)
	})

	t.Run("OtherErrorBacksOffFurther", func(t *testing.T) {
		t.Parallel()

		var gotNext time.Time
		var popNow time.Time
		queue := &mock.PendingQueue{
			PopFn: func(ctx context.Context, n int, now time.Time) ([]*focal.PendingVector, error) {
				popNow = now
				return []*focal.PendingVector{pendingRec("doc-1")}, nil
			},
			RescheduleFn: func(ctx context.Context, docID string, attempts int, nextAttemptAt time.Time) error {
				gotNext = nextAttemptAt
				return nil
			},
		}
		vectors := &mock.VectorStore{
			IndexFromPendingFn: func(ctx context.Context, rec *focal.PendingVector) error {
				return focal.Errorf(focal.EINTERNAL, "collection write failed")
			},
		}

		w := crawl.NewPendingWorker(queue, vectors, crawl.WithPendingInterval(time.Second))
		w.DrainOnce(context.Background())

		// Zero prior attempts, but a non-embedder error starts one
		// doubling out: interval << 1.
		assert.Equal(t, popNow.Add(2*time.Second), gotNext)
	})

	t.Run("BackoffCapped", func(t *testing.T) {
		t.Parallel()

		rec := pendingRec("doc-1")
		rec.Attempts = 30

		var gotNext time.Time
		var popNow time.Time
		queue := &mock.PendingQueue{
			PopFn: func(ctx context.Context, n int, now time.Time) ([]*focal.PendingVector, error) {
				popNow = now
				return []*focal.PendingVector{rec}, nil
			},
			RescheduleFn: func(ctx context.Context, docID string, attempts int, nextAttemptAt time.Time) error {
				gotNext = nextAttemptAt
				return nil
			},
		}
		vectors := &mock.VectorStore{
			IndexFromPendingFn: func(ctx context.Context, rec *focal.PendingVector) error {
				return &focal.EmbedderUnavailableError{Model: "nomic-embed-text", Detail: "connection refused"}
			},
		}

		w := crawl.NewPendingWorker(queue, vectors, crawl.WithPendingInterval(time.Second))
		w.DrainOnce(context.Background())
		assert.Equal(t, popNow.Add(5*time.Minute), gotNext)
	})

	t.Run("PopFailureReturnsZero", func(t *testing.T) {
		t.Parallel()

		queue := &mock.PendingQueue{
			PopFn: func(ctx context.Context, n int, now time.Time) ([]*focal.PendingVector, error) {
				return nil, focal.Errorf(focal.EINTERNAL, "database is locked")
			},
		}
		w := crawl.NewPendingWorker(queue, &mock.VectorStore{})
		assert.Zero(t, w.DrainOnce(context.Background()))
	})

	t.Run("BatchSizePassedToPop", func(t *testing.T) {
		t.Parallel()

		var gotN int
		queue := &mock.PendingQueue{
			PopFn: func(ctx context.Context, n int, now time.Time) ([]*focal.PendingVector, error) {
				gotN = n
				return nil, nil
			},
		}
		w := crawl.NewPendingWorker(queue, &mock.VectorStore{}, crawl.WithPendingBatch(12))
		w.DrainOnce(context.Background())
		assert.Equal(t, 12, gotN)
	})

	t.Run("OpenCloseDrainsInBackground", func(t *testing.T) {
		t.Parallel()

		indexed := make(chan string, 1)
		var popped bool
		queue := &mock.PendingQueue{
			PopFn: func(ctx context.Context, n int, now time.Time) ([]*focal.PendingVector, error) {
				if popped {
					return nil, nil
				}
				popped = true
				return []*focal.PendingVector{pendingRec("doc-1")}, nil
			},
			ClearFn: func(ctx context.Context, docID string) error { return nil },
		}
		vectors := &mock.VectorStore{
			IndexFromPendingFn: func(ctx context.Context, rec *focal.PendingVector) error {
				indexed <- rec.DocID
				return nil
			},
		}

		w := crawl.NewPendingWorker(queue, vectors, crawl.WithPendingInterval(10*time.Millisecond))
		require.NoError(t, w.Open())
		defer w.Close()

		select {
		case docID := <-indexed:
			assert.Equal(t, "doc-1", docID)
		case <-time.After(2 * time.Second):
			t.Fatal("pending vector never indexed")
		}
	})
}
