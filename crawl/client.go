// Package crawl runs focused crawls: it discovers and scores candidate
// URLs, builds a polite frontier, fetches and normalizes pages, and
// drives the whole sequence as deduplicated background jobs with stage
// progress.
package crawl

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/usefocal/focal"
	"github.com/usefocal/focal/goquery"
)

var _ focal.Crawler = (*Client)(nil)

// Client defaults.
const (
	DefaultMinDelay       = 1 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultUserAgent      = "focalbot/1.0 (+https://github.com/usefocal/focal)"
	DefaultMinTextLen     = 200

	maxBodyBytes = 10 << 20
)

// Client fetches pages for focused crawls. One client serializes all of
// its fetches behind a mutex so the minimum delay between requests holds
// globally no matter how many goroutines call Fetch.
type Client struct {
	robots      focal.RobotsPolicy
	extractors  []focal.Extractor
	fallback    focal.Fetcher
	httpc       *http.Client
	userAgent   string
	minTextLen  int
	retryDelays []time.Duration
	logger      zerolog.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	robots         focal.RobotsPolicy
	extractors     []focal.Extractor
	fallback       focal.Fetcher
	userAgent      string
	minDelay       time.Duration
	minTextLen     int
	requestTimeout time.Duration
	readTimeout    time.Duration
	retryDelays    []time.Duration
	logger         zerolog.Logger
}

// WithRobots sets the robots.txt policy. Without one every URL is fetched.
func WithRobots(p focal.RobotsPolicy) ClientOption {
	return func(c *clientConfig) { c.robots = p }
}

// WithExtractors sets the content extractor chain, tried in order until
// one yields non-empty text.
func WithExtractors(e ...focal.Extractor) ClientOption {
	return func(c *clientConfig) { c.extractors = e }
}

// WithRenderFallback sets a headless fetcher used when the plain response
// extracts to fewer than minTextLen characters of text.
func WithRenderFallback(f focal.Fetcher, minTextLen int) ClientOption {
	return func(c *clientConfig) {
		c.fallback = f
		if minTextLen > 0 {
			c.minTextLen = minTextLen
		}
	}
}

// WithCrawlUserAgent sets the User-Agent header.
func WithCrawlUserAgent(ua string) ClientOption {
	return func(c *clientConfig) { c.userAgent = ua }
}

// WithMinDelay sets the minimum spacing between successive fetches.
func WithMinDelay(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.minDelay = d }
}

// WithTimeouts sets the time allowed for response headers to arrive and
// for the whole request including the body read.
func WithTimeouts(request, read time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.requestTimeout = request
		c.readTimeout = read
	}
}

// WithRetryDelays overrides the transport-error retry backoff. No
// arguments disables retries.
func WithRetryDelays(delays ...time.Duration) ClientOption {
	return func(c *clientConfig) { c.retryDelays = delays }
}

// WithClientLogger sets the logger.
func WithClientLogger(logger zerolog.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = logger }
}

// NewClient creates a polite crawl client.
func NewClient(opts ...ClientOption) *Client {
	cfg := clientConfig{
		userAgent:      DefaultUserAgent,
		minDelay:       DefaultMinDelay,
		minTextLen:     DefaultMinTextLen,
		requestTimeout: DefaultRequestTimeout,
		readTimeout:    DefaultReadTimeout,
		retryDelays:    DefaultRetryDelays(),
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		robots:     cfg.robots,
		extractors: cfg.extractors,
		fallback:   cfg.fallback,
		httpc: &http.Client{
			Timeout: cfg.readTimeout,
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.requestTimeout,
			},
		},
		userAgent:   cfg.userAgent,
		minTextLen:  cfg.minTextLen,
		retryDelays: cfg.retryDelays,
		logger:      cfg.logger,
		limiter:     rate.NewLimiter(rate.Every(cfg.minDelay), 1),
	}
}

// fetchedPage is the raw HTTP outcome before extraction.
type fetchedPage struct {
	status       int
	html         string
	contentType  string
	etag         string
	lastModified string
}

// Fetch retrieves one page and extracts its text. A nil result with a nil
// error means the page is skippable: disallowed by robots, an error
// status, a non-text content type, or nothing extractable. Transport
// failures are retried and finally reported as EUNAVAILABLE.
//
// The client lock is held for the whole fetch, including the throttle
// wait and any rendered fallback, so concurrent callers cannot defeat the
// politeness delay.
func (c *Client) Fetch(ctx context.Context, url string) (*focal.CrawlResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if c.robots != nil && !c.robots.Allowed(ctx, url) {
		c.logger.Debug().Str("url", url).Msg("disallowed by robots.txt")
		return nil, nil
	}

	page, err := fetchWithRetry(ctx, url, c.get, c.logger, c.retryDelays)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, focal.Errorf(focal.EUNAVAILABLE, "fetch %s: %v", url, err)
	}
	if page.status >= 400 {
		c.logger.Debug().Str("url", url).Int("status", page.status).Msg("skipping error status")
		return nil, nil
	}
	if !textContentType(page.contentType) {
		c.logger.Debug().Str("url", url).Str("content_type", page.contentType).Msg("skipping non-text content")
		return nil, nil
	}

	title, text := c.extract(page.html)
	if len(text) < c.minTextLen && c.fallback != nil {
		if rendered, renderErr := c.fallback.Fetch(ctx, url); renderErr == nil {
			if t2, x2 := c.extract(rendered); len(x2) > len(text) {
				page.html, title, text = rendered, t2, x2
			}
		} else {
			c.logger.Debug().Str("url", url).Err(renderErr).Msg("rendered fallback failed")
		}
	}
	if text == "" {
		c.logger.Debug().Str("url", url).Msg("no extractable text")
		return nil, nil
	}
	if title == "" {
		title = goquery.ExtractTitle(page.html)
	}

	var lastModified time.Time
	if page.lastModified != "" {
		if t, parseErr := dateparse.ParseAny(page.lastModified); parseErr == nil {
			lastModified = t.UTC()
		}
	}
	outlinks, _ := goquery.ExtractOutlinks(page.html, url)

	return &focal.CrawlResult{
		URL:          url,
		Status:       page.status,
		HTML:         page.html,
		Text:         text,
		Title:        title,
		ETag:         page.etag,
		LastModified: lastModified,
		ContentHash:  focal.HashText(text),
		ContentType:  page.contentType,
		FetchedAt:    time.Now().UTC(),
		Outlinks:     outlinks,
	}, nil
}

func (c *Client) get(ctx context.Context, url string) (fetchedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetchedPage{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fetchedPage{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fetchedPage{}, err
	}
	return fetchedPage{
		status:       resp.StatusCode,
		html:         string(body),
		contentType:  resp.Header.Get("Content-Type"),
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// extract runs the extractor chain and returns the first non-empty text
// along with its title.
func (c *Client) extract(html string) (title, text string) {
	for _, extractor := range c.extractors {
		result, err := extractor.Extract(html)
		if err != nil || result == nil {
			continue
		}
		if t := strings.TrimSpace(result.ContentText); t != "" {
			return result.Title, t
		}
		if title == "" {
			title = result.Title
		}
	}
	return title, ""
}

// textContentType reports whether a Content-Type header names something
// worth extracting. An absent header is given the benefit of the doubt.
func textContentType(ct string) bool {
	if ct == "" {
		return true
	}
	ct = strings.ToLower(ct)
	return strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "html") ||
		strings.Contains(ct, "xml")
}
