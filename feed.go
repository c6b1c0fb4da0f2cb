package focal

import (
	"context"
	"time"
)

// FeedEntry is one item from a syndication feed.
type FeedEntry struct {
	URL       string
	Title     string
	Published time.Time
}

// FeedFetcher expands a feed URL into its entries. Used by discovery to
// turn registry feeds into dated crawl candidates.
type FeedFetcher interface {
	Entries(ctx context.Context, feedURL string) ([]FeedEntry, error)
}

// SitemapService expands a sitemap URL into page URLs. Sitemap indexes are
// resolved recursively.
type SitemapService interface {
	DiscoverURLs(ctx context.Context, sitemapURL string) ([]string, error)
}
