// Package gofeed expands RSS/Atom feeds into dated crawl candidates for
// discovery.
package gofeed

import (
	"context"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/usefocal/focal"
)

const (
	fetchTimeout = 10 * time.Second

	// maxEntries caps how many items a single feed may contribute. Busy
	// feeds would otherwise crowd out every other discovery source.
	maxEntries = 50
)

var _ focal.FeedFetcher = (*Fetcher)(nil)

// Fetcher retrieves and parses syndication feeds.
type Fetcher struct {
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
}

// NewFetcher creates a feed fetcher identifying itself with userAgent.
func NewFetcher(userAgent string) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: fetchTimeout},
		parser:    gofeed.NewParser(),
		userAgent: userAgent,
	}
}

// Entries fetches feedURL and returns its items, newest first as the feed
// orders them, capped at 50. Entries without a usable link are skipped.
func (f *Fetcher) Entries(ctx context.Context, feedURL string) ([]focal.FeedEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, focal.Errorf(focal.EINVALID, "invalid feed URL %q: %v", feedURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, focal.Errorf(focal.EUNAVAILABLE, "fetch feed %s: %v", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, focal.Errorf(focal.EUNAVAILABLE, "fetch feed %s: status %d", feedURL, resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, focal.Errorf(focal.EINVALID, "parse feed %s: %v", feedURL, err)
	}

	entries := make([]focal.FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if len(entries) >= maxEntries {
			break
		}
		clean, ok := focal.SanitizeURL(item.Link, nil)
		if !ok {
			continue
		}
		entry := focal.FeedEntry{URL: clean, Title: item.Title}
		if item.PublishedParsed != nil {
			entry.Published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			entry.Published = *item.UpdatedParsed
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
