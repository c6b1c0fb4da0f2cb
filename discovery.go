package focal

import "context"

// Candidate is a scored crawl candidate produced by the discovery engine.
type Candidate struct {
	URL        string  `json:"url"`
	Source     string  `json:"source"`
	Boost      float64 `json:"boost"`
	ValuePrior float64 `json:"value_prior"`
	Freshness  float64 `json:"freshness"`
	Authority  float64 `json:"authority"`
	Score      float64 `json:"score"`
}

// DiscoveryHint is a structured input to the discovery engine. Hints arrive
// heterogeneously from outer surfaces; the closed set of variants below is
// dispatched in one place, never sniffed.
type DiscoveryHint interface {
	isDiscoveryHint()
}

// HTMLHint is a snippet of HTML whose anchors become candidates.
type HTMLHint struct {
	HTML    string
	BaseURL string
}

// EntityHint is an encyclopedic-entity record contributing sitelinks and an
// official website.
type EntityHint struct {
	Name            string
	Sitelinks       []string
	OfficialWebsite string
}

// RepoHint is a code-repository record contributing its homepage and
// documentation paths.
type RepoHint struct {
	RepoURL  string
	Homepage string
}

// SitemapHint is a group of URLs taken from a sitemap.
type SitemapHint struct {
	URLs []string
}

func (HTMLHint) isDiscoveryHint()    {}
func (EntityHint) isDiscoveryHint()  {}
func (RepoHint) isDiscoveryHint()    {}
func (SitemapHint) isDiscoveryHint() {}

// Seed is one curated registry entry.
type Seed struct {
	ID       string   `yaml:"id"`
	URL      string   `yaml:"url"`
	Keywords []string `yaml:"keywords,omitempty"`
	Trust    float64  `yaml:"trust,omitempty"`
	Boost    float64  `yaml:"boost,omitempty"`
	Feed     string   `yaml:"feed,omitempty"`
	Sitemap  string   `yaml:"sitemap,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
}

// SeedRegistry serves the curated seed list.
type SeedRegistry interface {
	Seeds(ctx context.Context) ([]Seed, error)
}

// AuthorityIndex supplies a per-host authority score in [0,1].
type AuthorityIndex interface {
	Authority(host string) float64
}

// DiscoveryRequest asks the discovery engine for crawl candidates.
type DiscoveryRequest struct {
	Query      string
	Limit      int
	ExtraSeeds []string

	// SimilarSeeds are URLs that earned high scores under similar past
	// queries. They enter scoring at learned grade rather than the
	// manual grade of ExtraSeeds.
	SimilarSeeds []string

	Hints  []DiscoveryHint
	UseLLM bool
	Model  string
}

// DiscoveryService merges registry, learned, LLM and hint-derived seeds
// into a ranked candidate list.
type DiscoveryService interface {
	Discover(ctx context.Context, req DiscoveryRequest) ([]Candidate, error)
}

// Suggester proposes crawl-worthy URLs for a query, typically via an LLM.
type Suggester interface {
	SuggestURLs(ctx context.Context, query, model string, limit int) ([]string, error)
}

// Reranker reorders a cluster of close-scored candidate URLs, best first.
// Implementations that cannot produce a valid order must return the input
// unchanged rather than an error the caller has to branch on.
type Reranker interface {
	Rerank(ctx context.Context, query string, urls []string, model string) ([]string, error)
}
