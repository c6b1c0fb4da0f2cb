package mock

import (
	"context"

	"github.com/usefocal/focal"
)

var _ focal.SitemapService = (*SitemapService)(nil)

// SitemapService is a mock implementation of focal.SitemapService.
type SitemapService struct {
	DiscoverURLsFn func(ctx context.Context, sitemapURL string) ([]string, error)
}

func (s *SitemapService) DiscoverURLs(ctx context.Context, sitemapURL string) ([]string, error) {
	return s.DiscoverURLsFn(ctx, sitemapURL)
}

var _ focal.FeedFetcher = (*FeedFetcher)(nil)

// FeedFetcher is a mock implementation of focal.FeedFetcher.
type FeedFetcher struct {
	EntriesFn func(ctx context.Context, feedURL string) ([]focal.FeedEntry, error)
}

func (f *FeedFetcher) Entries(ctx context.Context, feedURL string) ([]focal.FeedEntry, error) {
	return f.EntriesFn(ctx, feedURL)
}
