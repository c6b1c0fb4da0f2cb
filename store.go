package focal

import (
	"context"
	"io"
)

// RawCrawlStore persists crawler output batches as JSONL files.
type RawCrawlStore interface {
	// Append adds records to a batch file and returns the file path.
	Append(ctx context.Context, batch string, recs []*RawRecord) (string, error)

	// ReadBatch returns all records of a batch.
	// Returns ENOTFOUND if the batch does not exist.
	ReadBatch(ctx context.Context, batch string) ([]*RawRecord, error)
}

// NormalizedStore persists normalized documents as JSONL. The store
// accumulates across crawls so the keyword index can be rebuilt from it.
type NormalizedStore interface {
	Append(ctx context.Context, docs []*Document) error
	ReadAll(ctx context.Context) ([]*Document, error)
}

// LastIndexStore records the epoch seconds of the last index commit.
type LastIndexStore interface {
	Write(epochSeconds int64) error

	// Read returns the stored stamp, or zero when absent or unreadable.
	Read() (int64, error)
}

// JobLogStore appends progress lines to per-job log files.
type JobLogStore interface {
	Append(jobID, line string) error
	Open(jobID string) (io.ReadCloser, error)
}

// Page is a rendered markdown page for export.
type Page struct {
	URL      string
	Title    string
	Markdown string
}

// PageStore persists pages to storage with atomic semantics.
// Save writes to a temporary location; Commit makes changes permanent;
// Abort discards pending changes.
type PageStore interface {
	Save(ctx context.Context, page *Page) error
	Commit() error
	Abort() error
}
