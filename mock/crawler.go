package mock

import (
	"context"

	"github.com/usefocal/focal"
)

var _ focal.Crawler = (*Crawler)(nil)

// Crawler is a mock implementation of focal.Crawler.
type Crawler struct {
	FetchFn func(ctx context.Context, url string) (*focal.CrawlResult, error)
}

func (c *Crawler) Fetch(ctx context.Context, url string) (*focal.CrawlResult, error) {
	return c.FetchFn(ctx, url)
}

var _ focal.RobotsPolicy = (*RobotsPolicy)(nil)

// RobotsPolicy is a mock implementation of focal.RobotsPolicy.
type RobotsPolicy struct {
	AllowedFn func(ctx context.Context, rawURL string) bool
}

func (p *RobotsPolicy) Allowed(ctx context.Context, rawURL string) bool {
	return p.AllowedFn(ctx, rawURL)
}
