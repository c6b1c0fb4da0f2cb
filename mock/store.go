package mock

import (
	"context"
	"io"

	"github.com/usefocal/focal"
)

var _ focal.RawCrawlStore = (*RawCrawlStore)(nil)

// RawCrawlStore is a mock implementation of focal.RawCrawlStore.
type RawCrawlStore struct {
	AppendFn    func(ctx context.Context, batch string, recs []*focal.RawRecord) (string, error)
	ReadBatchFn func(ctx context.Context, batch string) ([]*focal.RawRecord, error)
}

func (s *RawCrawlStore) Append(ctx context.Context, batch string, recs []*focal.RawRecord) (string, error) {
	return s.AppendFn(ctx, batch, recs)
}

func (s *RawCrawlStore) ReadBatch(ctx context.Context, batch string) ([]*focal.RawRecord, error) {
	return s.ReadBatchFn(ctx, batch)
}

var _ focal.NormalizedStore = (*NormalizedStore)(nil)

// NormalizedStore is a mock implementation of focal.NormalizedStore.
type NormalizedStore struct {
	AppendFn  func(ctx context.Context, docs []*focal.Document) error
	ReadAllFn func(ctx context.Context) ([]*focal.Document, error)
}

func (s *NormalizedStore) Append(ctx context.Context, docs []*focal.Document) error {
	return s.AppendFn(ctx, docs)
}

func (s *NormalizedStore) ReadAll(ctx context.Context) ([]*focal.Document, error) {
	return s.ReadAllFn(ctx)
}

var _ focal.LastIndexStore = (*LastIndexStore)(nil)

// LastIndexStore is a mock implementation of focal.LastIndexStore.
type LastIndexStore struct {
	WriteFn func(epochSeconds int64) error
	ReadFn  func() (int64, error)
}

func (s *LastIndexStore) Write(epochSeconds int64) error {
	return s.WriteFn(epochSeconds)
}

func (s *LastIndexStore) Read() (int64, error) {
	return s.ReadFn()
}

var _ focal.JobLogStore = (*JobLogStore)(nil)

// JobLogStore is a mock implementation of focal.JobLogStore.
type JobLogStore struct {
	AppendFn func(jobID, line string) error
	OpenFn   func(jobID string) (io.ReadCloser, error)
}

func (s *JobLogStore) Append(jobID, line string) error {
	return s.AppendFn(jobID, line)
}

func (s *JobLogStore) Open(jobID string) (io.ReadCloser, error) {
	return s.OpenFn(jobID)
}

var _ focal.PageStore = (*PageStore)(nil)

// PageStore is a mock implementation of focal.PageStore.
type PageStore struct {
	SaveFn   func(ctx context.Context, page *focal.Page) error
	CommitFn func() error
	AbortFn  func() error
}

func (s *PageStore) Save(ctx context.Context, page *focal.Page) error {
	return s.SaveFn(ctx, page)
}

func (s *PageStore) Commit() error {
	return s.CommitFn()
}

func (s *PageStore) Abort() error {
	return s.AbortFn()
}
