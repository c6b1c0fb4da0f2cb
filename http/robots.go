package http

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/usefocal/focal"
	"github.com/usefocal/focal/rod"
)

// DefaultRobotsTTL bounds how long a cached robots.txt answer is trusted.
const DefaultRobotsTTL = time.Hour

// maxRobotsBytes caps how much of a robots.txt file is read.
const maxRobotsBytes = 512 << 10

// Ensure RobotsPolicy implements focal.RobotsPolicy.
var _ focal.RobotsPolicy = (*RobotsPolicy)(nil)

// RobotsPolicy answers robots.txt questions with a per-host cache. Hosts
// whose robots.txt cannot be retrieved or parsed allow everything: a broken
// robots file must not block a crawl.
type RobotsPolicy struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration

	mu    sync.Mutex
	cache map[string]*robotsEntry
}

// robotsEntry caches the parsed rules for one host. A nil data means the
// host allows everything.
type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// NewRobotsPolicy creates a RobotsPolicy. A nil client gets a default with
// the standard fetch timeout; an empty userAgent defaults to "focalbot".
func NewRobotsPolicy(client *http.Client, userAgent string) *RobotsPolicy {
	if client == nil {
		client = &http.Client{Timeout: rod.DefaultFetchTimeout}
	}
	if userAgent == "" {
		userAgent = "focalbot"
	}
	return &RobotsPolicy{
		client:    client,
		userAgent: userAgent,
		ttl:       DefaultRobotsTTL,
		cache:     make(map[string]*robotsEntry),
	}
}

// Allowed reports whether the URL may be fetched under its host's
// robots.txt. Unparseable URLs are allowed; the fetch itself will fail with
// a better error.
func (p *RobotsPolicy) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	data := p.robotsFor(ctx, u)
	if data == nil {
		return true
	}

	path := u.RequestURI()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, p.userAgent)
}

func (p *RobotsPolicy) robotsFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	host := strings.ToLower(u.Host)

	p.mu.Lock()
	if e, ok := p.cache[host]; ok && time.Since(e.fetchedAt) < p.ttl {
		p.mu.Unlock()
		return e.data
	}
	p.mu.Unlock()

	data := p.fetch(ctx, u.Scheme, host)

	p.mu.Lock()
	p.cache[host] = &robotsEntry{data: data, fetchedAt: time.Now()}
	p.mu.Unlock()
	return data
}

// fetch retrieves and parses a host's robots.txt. Any failure, transport
// error, non-200 status or unparseable body, yields nil: allow everything.
func (p *RobotsPolicy) fetch(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	if scheme == "" {
		scheme = "https"
	}
	robotsURL := scheme + "://" + host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data
}
