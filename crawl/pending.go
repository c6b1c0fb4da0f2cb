package crawl

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/usefocal/focal"
)

// Pending-worker defaults.
const (
	DefaultPendingInterval = 5 * time.Second
	DefaultPendingBatch    = 5

	maxPendingBackoff = 5 * time.Minute
)

// PendingWorker drains the pending-vectors queue in the background. It
// retries documents parked while the embedder was unavailable, backing
// off per document until the embed+store step succeeds.
type PendingWorker struct {
	queue    focal.PendingQueue
	vectors  focal.VectorStore
	interval time.Duration
	batch    int
	logger   zerolog.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// PendingWorkerOption configures a PendingWorker.
type PendingWorkerOption func(*PendingWorker)

// WithPendingInterval sets the idle poll interval.
func WithPendingInterval(d time.Duration) PendingWorkerOption {
	return func(w *PendingWorker) { w.interval = d }
}

// WithPendingBatch sets how many rows one sweep pops.
func WithPendingBatch(n int) PendingWorkerOption {
	return func(w *PendingWorker) { w.batch = n }
}

// WithPendingLogger sets the logger.
func WithPendingLogger(logger zerolog.Logger) PendingWorkerOption {
	return func(w *PendingWorker) { w.logger = logger }
}

// NewPendingWorker creates a worker over the queue and vector store.
// Call Open to start it.
func NewPendingWorker(queue focal.PendingQueue, vectors focal.VectorStore, opts ...PendingWorkerOption) *PendingWorker {
	w := &PendingWorker{
		queue:    queue,
		vectors:  vectors,
		interval: DefaultPendingInterval,
		batch:    DefaultPendingBatch,
		logger:   zerolog.Nop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open starts the background loop.
func (w *PendingWorker) Open() error {
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Close stops the loop and waits for the current sweep to finish.
func (w *PendingWorker) Close() error {
	close(w.done)
	w.wg.Wait()
	return nil
}

func (w *PendingWorker) loop() {
	defer w.wg.Done()
	for {
		n := w.DrainOnce(context.Background())
		if n == 0 {
			select {
			case <-w.done:
				return
			case <-time.After(w.interval):
			}
			continue
		}
		select {
		case <-w.done:
			return
		default:
		}
	}
}

// DrainOnce pops one batch of due rows and processes them, returning the
// number popped. Rows that still fail are rescheduled with backoff, so a
// return of zero means nothing is due right now.
func (w *PendingWorker) DrainOnce(ctx context.Context) int {
	now := time.Now().UTC()
	recs, err := w.queue.Pop(ctx, w.batch, now)
	if err != nil {
		w.logger.Warn().Err(err).Msg("popping pending vectors failed")
		return 0
	}
	for _, rec := range recs {
		w.process(ctx, rec, now)
	}
	return len(recs)
}

func (w *PendingWorker) process(ctx context.Context, rec *focal.PendingVector, now time.Time) {
	err := w.vectors.IndexFromPending(ctx, rec)
	if err == nil {
		if cerr := w.queue.Clear(ctx, rec.DocID); cerr != nil {
			w.logger.Warn().Err(cerr).Str("doc_id", rec.DocID).Msg("clearing pending vector failed")
		}
		w.logger.Info().Str("doc_id", rec.DocID).Str("url", rec.URL).
			Int("attempts", rec.Attempts).Msg("pending vector indexed")
		return
	}

	attempts := rec.Attempts + 1
	delay := w.backoff(err, rec.Attempts)
	if rerr := w.queue.Reschedule(ctx, rec.DocID, attempts, now.Add(delay)); rerr != nil {
		w.logger.Warn().Err(rerr).Str("doc_id", rec.DocID).Msg("rescheduling pending vector failed")
	}
	if focal.IsEmbedderUnavailable(err) {
		w.logger.Debug().Str("doc_id", rec.DocID).Dur("retry_in", delay).Msg("embedder still unavailable")
		return
	}
	w.logger.Warn().Err(err).Str("doc_id", rec.DocID).Dur("retry_in", delay).Msg("indexing pending vector failed")
}

// backoff doubles per attempt from the poll interval. Errors other than
// embedder unavailability start one doubling further out.
func (w *PendingWorker) backoff(err error, attempts int) time.Duration {
	shift := attempts
	if !focal.IsEmbedderUnavailable(err) {
		shift++
	}
	if shift > 16 {
		shift = 16
	}
	d := w.interval << uint(shift)
	if d <= 0 || d > maxPendingBackoff {
		d = maxPendingBackoff
	}
	return d
}
