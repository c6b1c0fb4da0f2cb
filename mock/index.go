package mock

import (
	"context"

	"github.com/usefocal/focal"
)

var _ focal.KeywordIndex = (*KeywordIndex)(nil)

// KeywordIndex is a mock implementation of focal.KeywordIndex.
type KeywordIndex struct {
	UpsertFn   func(ctx context.Context, doc *focal.Document) error
	CommitFn   func(ctx context.Context) error
	SearchFn   func(ctx context.Context, query string, opts focal.KeywordSearchOptions) ([]focal.KeywordHit, uint64, error)
	DocCountFn func() (uint64, error)
	CloseFn    func() error
}

func (i *KeywordIndex) Upsert(ctx context.Context, doc *focal.Document) error {
	return i.UpsertFn(ctx, doc)
}

func (i *KeywordIndex) Commit(ctx context.Context) error {
	return i.CommitFn(ctx)
}

func (i *KeywordIndex) Search(ctx context.Context, query string, opts focal.KeywordSearchOptions) ([]focal.KeywordHit, uint64, error) {
	return i.SearchFn(ctx, query, opts)
}

func (i *KeywordIndex) DocCount() (uint64, error) {
	return i.DocCountFn()
}

func (i *KeywordIndex) Close() error {
	return i.CloseFn()
}

var _ focal.IndexService = (*IndexService)(nil)

// IndexService is a mock implementation of focal.IndexService.
type IndexService struct {
	IncrementalIndexFn func(ctx context.Context, docs []*focal.Document) (focal.IndexStats, error)
	LastIndexTimeFn    func() int64
}

func (s *IndexService) IncrementalIndex(ctx context.Context, docs []*focal.Document) (focal.IndexStats, error) {
	return s.IncrementalIndexFn(ctx, docs)
}

func (s *IndexService) LastIndexTime() int64 {
	return s.LastIndexTimeFn()
}
