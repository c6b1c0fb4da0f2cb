package mock

import (
	"context"
	"time"

	"github.com/usefocal/focal"
)

var _ focal.LearnedWebService = (*LearnedWebService)(nil)

// LearnedWebService is a mock implementation of focal.LearnedWebService.
type LearnedWebService struct {
	UpsertDomainFn          func(ctx context.Context, up focal.DomainUpsert) (int64, error)
	FindDomainFn            func(ctx context.Context, host string) (*focal.Domain, error)
	RecordDiscoveryFn       func(ctx context.Context, query, rawURL, reason, source string, score float64, crawlID string) (int64, bool, error)
	TopDiscoveriesFn        func(ctx context.Context, limit int) ([]*focal.Discovery, error)
	UpsertQueryEmbeddingFn  func(ctx context.Context, query string, embedding []float32) error
	SimilarDiscoverySeedsFn func(ctx context.Context, embedding []float32, limit int) ([]string, error)
	DomainValueMapFn        func(ctx context.Context) (map[string]float64, error)
	StartCrawlFn            func(ctx context.Context, crawl *focal.CrawlRecord) error
	CompleteCrawlFn         func(ctx context.Context, id string, pagesFetched, docsIndexed int) error
	RecordPageFn            func(ctx context.Context, page *focal.PageRecord) (int64, error)
	RecordLinkFn            func(ctx context.Context, fromPageID int64, toURL, crawlID string) error
	MarkIndexedFn           func(ctx context.Context, urls []string, at time.Time) error
	CloseFn                 func() error
}

func (s *LearnedWebService) UpsertDomain(ctx context.Context, up focal.DomainUpsert) (int64, error) {
	return s.UpsertDomainFn(ctx, up)
}

func (s *LearnedWebService) FindDomain(ctx context.Context, host string) (*focal.Domain, error) {
	return s.FindDomainFn(ctx, host)
}

func (s *LearnedWebService) RecordDiscovery(ctx context.Context, query, rawURL, reason, source string, score float64, crawlID string) (int64, bool, error) {
	return s.RecordDiscoveryFn(ctx, query, rawURL, reason, source, score, crawlID)
}

func (s *LearnedWebService) TopDiscoveries(ctx context.Context, limit int) ([]*focal.Discovery, error) {
	return s.TopDiscoveriesFn(ctx, limit)
}

func (s *LearnedWebService) UpsertQueryEmbedding(ctx context.Context, query string, embedding []float32) error {
	return s.UpsertQueryEmbeddingFn(ctx, query, embedding)
}

func (s *LearnedWebService) SimilarDiscoverySeeds(ctx context.Context, embedding []float32, limit int) ([]string, error) {
	return s.SimilarDiscoverySeedsFn(ctx, embedding, limit)
}

func (s *LearnedWebService) DomainValueMap(ctx context.Context) (map[string]float64, error) {
	return s.DomainValueMapFn(ctx)
}

func (s *LearnedWebService) StartCrawl(ctx context.Context, crawl *focal.CrawlRecord) error {
	return s.StartCrawlFn(ctx, crawl)
}

func (s *LearnedWebService) CompleteCrawl(ctx context.Context, id string, pagesFetched, docsIndexed int) error {
	return s.CompleteCrawlFn(ctx, id, pagesFetched, docsIndexed)
}

func (s *LearnedWebService) RecordPage(ctx context.Context, page *focal.PageRecord) (int64, error) {
	return s.RecordPageFn(ctx, page)
}

func (s *LearnedWebService) RecordLink(ctx context.Context, fromPageID int64, toURL, crawlID string) error {
	return s.RecordLinkFn(ctx, fromPageID, toURL, crawlID)
}

func (s *LearnedWebService) MarkIndexed(ctx context.Context, urls []string, at time.Time) error {
	return s.MarkIndexedFn(ctx, urls, at)
}

func (s *LearnedWebService) Close() error {
	return s.CloseFn()
}
