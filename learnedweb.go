package focal

import (
	"context"
	"time"
)

// Domain is a learned-web host with its accumulated value prior.
type Domain struct {
	ID                  int64     `json:"id"`
	Host                string    `json:"host"`
	FirstSeen           time.Time `json:"first_seen"`
	LastSeen            time.Time `json:"last_seen"`
	LearnedScore        float64   `json:"learned_score"`
	DiscoveryCount      int       `json:"discovery_count"`
	LastDiscoveryReason string    `json:"last_discovery_reason,omitempty"`
	LastCrawlAt         time.Time `json:"last_crawl_at,omitempty"`
	LastIndexAt         time.Time `json:"last_index_at,omitempty"`
}

// DomainUpsert carries the fields merged into a domain row. Zero values
// leave the stored column untouched; timestamps and LearnedScore merge with
// monotone-max semantics and DiscoveryDelta is additive.
type DomainUpsert struct {
	Host                string
	LastSeen            time.Time
	LearnedScore        float64
	DiscoveryDelta      int
	LastDiscoveryReason string
	LastCrawlAt         time.Time
	LastIndexAt         time.Time
}

// PageRecord is one fetched page in the learned-web graph.
type PageRecord struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	DomainID  int64     `json:"domain_id"`
	Title     string    `json:"title,omitempty"`
	Status    int       `json:"status"`
	SimHash   uint64    `json:"fingerprint_simhash,omitempty"`
	MD5       string    `json:"fingerprint_md5,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
	IndexedAt time.Time `json:"indexed_at,omitempty"`
	CrawlID   string    `json:"crawl_id,omitempty"`
}

// CrawlRecord is the persisted account of one focused-crawl run.
type CrawlRecord struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
	PagesFetched int       `json:"pages_fetched"`
	DocsIndexed  int       `json:"docs_indexed"`
	Budget       int       `json:"budget"`
	SeedCount    int       `json:"seed_count"`
	UseLLM       bool      `json:"use_llm"`
	Model        string    `json:"model,omitempty"`
	RawPath      string    `json:"raw_path,omitempty"`
}

// Discovery is one recorded URL discovery for a query.
type Discovery struct {
	ID           int64     `json:"id"`
	Query        string    `json:"query"`
	DomainID     int64     `json:"domain_id"`
	URL          string    `json:"url"`
	Reason       string    `json:"reason"`
	Source       string    `json:"source,omitempty"`
	Score        float64   `json:"score"`
	DiscoveredAt time.Time `json:"discovered_at"`
	CrawlID      string    `json:"crawl_id,omitempty"`
}

// LearnedWebService is the SQLite-backed store of domains, pages, links,
// crawls, discoveries and query embeddings.
type LearnedWebService interface {
	// UpsertDomain merges a domain row and returns its id. last_* fields
	// and learned_score are monotone-max; discovery_count is additive.
	UpsertDomain(ctx context.Context, up DomainUpsert) (int64, error)

	// FindDomain returns a domain by host.
	// Returns ENOTFOUND if the host has never been seen.
	FindDomain(ctx context.Context, host string) (*Domain, error)

	// RecordDiscovery upserts the URL's host with the new score, appends a
	// discoveries row and returns the domain id. created is true only on
	// the first sighting of the host.
	RecordDiscovery(ctx context.Context, query, rawURL, reason, source string, score float64, crawlID string) (domainID int64, created bool, err error)

	// TopDiscoveries returns the best-scored discoveries, newest first
	// within equal scores.
	TopDiscoveries(ctx context.Context, limit int) ([]*Discovery, error)

	// UpsertQueryEmbedding stores an L2-normalized copy of the query
	// embedding.
	UpsertQueryEmbedding(ctx context.Context, query string, embedding []float32) error

	// SimilarDiscoverySeeds scans stored query embeddings and, for each
	// sufficiently similar past query, yields its best-scored URLs until
	// limit distinct URLs are produced.
	SimilarDiscoverySeeds(ctx context.Context, embedding []float32, limit int) ([]string, error)

	// DomainValueMap returns host -> max learned score for discovery
	// scoring.
	DomainValueMap(ctx context.Context) (map[string]float64, error)

	// StartCrawl inserts a crawls row.
	StartCrawl(ctx context.Context, crawl *CrawlRecord) error

	// CompleteCrawl finalizes a crawls row with its counters.
	CompleteCrawl(ctx context.Context, id string, pagesFetched, docsIndexed int) error

	// RecordPage upserts a page row and returns its id.
	RecordPage(ctx context.Context, page *PageRecord) (int64, error)

	// RecordLink upserts an edge from a page to a destination URL.
	RecordLink(ctx context.Context, fromPageID int64, toURL, crawlID string) error

	// MarkIndexed stamps indexed_at on the pages for the given URLs and
	// last_index_at on their domains.
	MarkIndexed(ctx context.Context, urls []string, at time.Time) error

	// Close releases the database handle.
	Close() error
}
