package focal

import (
	"context"
	"time"
)

// CrawlResult is one fetched page with its extracted text and caching
// metadata.
type CrawlResult struct {
	URL          string    `json:"url"`
	Status       int       `json:"status"`
	HTML         string    `json:"html"`
	Text         string    `json:"text"`
	Title        string    `json:"title,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
	ContentHash  string    `json:"content_hash"`
	ContentType  string    `json:"content_type,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
	Outlinks     []string  `json:"outlinks,omitempty"`
}

// Crawler fetches pages politely for focused crawls. A nil result with a
// nil error means the page was skippable (error status or no extractable
// text).
type Crawler interface {
	Fetch(ctx context.Context, url string) (*CrawlResult, error)
}

// Fetcher retrieves rendered HTML from URLs.
// Implementations may use browser automation to handle JavaScript-rendered
// content.
type Fetcher interface {
	// Fetch navigates to the URL and returns the rendered HTML.
	// The context controls timeout and cancellation.
	Fetch(ctx context.Context, url string) (html string, err error)

	// Close releases fetcher resources.
	// Must be called when the Fetcher is no longer needed.
	Close() error
}

// RobotsPolicy answers whether a URL may be fetched under the target host's
// robots.txt. Implementations cache per host and fail open when robots.txt
// cannot be retrieved.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}
