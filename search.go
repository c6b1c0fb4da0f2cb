package focal

import "context"

// SearchStatus labels a search response.
type SearchStatus string

// Search statuses.
const (
	SearchOK           SearchStatus = "ok"
	SearchCrawlRunning SearchStatus = "focused_crawl_running"
	SearchNoResults    SearchStatus = "no_results"
)

// MatchReason records which retrieval sides contributed to a hit.
type MatchReason string

// Match reasons.
const (
	MatchKeyword  MatchReason = "keyword"
	MatchSemantic MatchReason = "semantic"
	MatchBoth     MatchReason = "keyword+semantic"
)

// SearchResult is one blended hit.
type SearchResult struct {
	URL          string      `json:"url"`
	Title        string      `json:"title"`
	Snippet      string      `json:"snippet,omitempty"`
	Score        float64     `json:"score"`
	BlendedScore float64     `json:"blended_score"`
	MatchReason  MatchReason `json:"match_reason"`
	Domain       string      `json:"domain,omitempty"`
	About        string      `json:"about,omitempty"`
}

// SearchResponse is the full answer to a search request.
type SearchResponse struct {
	Status          SearchStatus   `json:"status"`
	Results         []SearchResult `json:"results"`
	Confidence      float64        `json:"confidence,omitempty"`
	JobID           string         `json:"job_id,omitempty"`
	LastIndexTime   int64          `json:"last_index_time,omitempty"`
	KeywordFallback bool           `json:"keyword_fallback,omitempty"`
}

// SearchOptions configures a hybrid search.
type SearchOptions struct {
	Limit  int
	UseLLM bool
	Model  string
}

// SearchService blends keyword and vector retrieval and triggers focused
// crawls on low coverage.
type SearchService interface {
	Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error)
}
