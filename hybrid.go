package focal

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Hybrid search defaults.
const (
	DefaultKeywordWeight       = 0.6
	DefaultVectorWeight        = 0.4
	DefaultSmartMinResults     = 3
	DefaultConfidenceThreshold = 0.35
	DefaultCandidatePool       = 40
	DefaultSearchLimit         = 10

	vectorSnippetMax = 360
)

// Ensure HybridSearch implements SearchService at compile time.
var _ SearchService = (*HybridSearch)(nil)

// HybridSearch blends keyword and vector retrieval into one ranked result
// set. Low-coverage answers submit a focused-crawl job through the job
// service so the index can catch up; the response then carries the job id.
type HybridSearch struct {
	Keyword KeywordIndex
	Vector  VectorStore
	Jobs    JobService
	Index   IndexService

	// KeywordWeight and VectorWeight control the linear blend. They are
	// renormalized to sum to one; a degenerate pair falls back to
	// 0.5/0.5.
	KeywordWeight float64
	VectorWeight  float64

	// SmartMinResults and ConfidenceThreshold define low coverage: fewer
	// results than the floor, or a best blended score under the
	// threshold, triggers a focused crawl when enabled.
	SmartMinResults     int
	ConfidenceThreshold float64

	// CandidatePool caps the keyword-side overfetch.
	CandidatePool int

	// FocusedCrawlEnabled gates the cold-start trigger.
	FocusedCrawlEnabled bool
}

// blendSide accumulates one URL's contributions from both retrieval sides.
type blendSide struct {
	url        string
	title      string
	domain     string
	kwScore    float64
	vecScore   float64
	hasKeyword bool
	hasVector  bool
	snippet    string
	order      int
}

// Search answers a query from both indexes. Vector-side failure degrades
// to keyword-only results with KeywordFallback set; keyword-side failure
// fails the search.
func (s *HybridSearch) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, Errorf(EINVALID, "search query required")
	}

	k := opts.Limit
	if k <= 0 {
		k = DefaultSearchLimit
	}
	pool := s.CandidatePool
	if pool <= 0 {
		pool = DefaultCandidatePool
	}
	candidateLimit := max(2*k, k+5)
	if candidateLimit > pool {
		candidateLimit = pool
	}

	var (
		kwHits   []KeywordHit
		vecHits  []VectorHit
		fallback bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, _, err := s.Keyword.Search(gctx, query, KeywordSearchOptions{PerPage: candidateLimit})
		if err != nil {
			return err
		}
		kwHits = hits
		return nil
	})
	g.Go(func() error {
		if s.Vector == nil {
			return nil
		}
		hits, err := s.Vector.Search(gctx, query, k, nil)
		if err != nil {
			// Degrade to keyword-only rather than failing the search.
			fallback = true
			return nil
		}
		vecHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := s.blend(query, kwHits, vecHits, k)

	resp := &SearchResponse{
		Status:          SearchOK,
		Results:         results,
		KeywordFallback: fallback,
	}
	if len(results) == 0 {
		resp.Status = SearchNoResults
	}
	for _, r := range results {
		if r.BlendedScore > resp.Confidence {
			resp.Confidence = r.BlendedScore
		}
	}
	if s.Index != nil {
		resp.LastIndexTime = s.Index.LastIndexTime()
	}

	s.maybeTrigger(ctx, query, opts, resp)
	return resp, nil
}

// maybeTrigger submits a focused-crawl job on low coverage. The job engine
// owns deduplication and the per-query cooldown: only a newly created job
// or a still-active one turns the response into focused_crawl_running.
func (s *HybridSearch) maybeTrigger(ctx context.Context, query string, opts SearchOptions, resp *SearchResponse) {
	if !s.FocusedCrawlEnabled || s.Jobs == nil {
		return
	}
	floor := s.SmartMinResults
	if floor <= 0 {
		floor = DefaultSmartMinResults
	}
	threshold := s.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	if len(resp.Results) >= floor && resp.Confidence >= threshold {
		return
	}

	res, err := s.Jobs.Enqueue(ctx, EnqueueRequest{
		Query:  query,
		UseLLM: opts.UseLLM,
		Model:  opts.Model,
	})
	if err != nil {
		return
	}
	if res.Created || res.Deduplicated {
		resp.Status = SearchCrawlRunning
		resp.JobID = res.JobID
	}
}

// blend max-normalizes each side, merges by URL and returns the top k by
// blended score. Blended scores are always within [0,1] and no URL appears
// twice.
func (s *HybridSearch) blend(query string, kwHits []KeywordHit, vecHits []VectorHit, k int) []SearchResult {
	wKw, wVec := normalizeWeights(s.KeywordWeight, s.VectorWeight)

	var topKw float64
	for _, h := range kwHits {
		if h.Score > topKw {
			topKw = h.Score
		}
	}
	var topVec float64
	for _, h := range vecHits {
		if float64(h.Score) > topVec {
			topVec = float64(h.Score)
		}
	}

	merged := make(map[string]*blendSide)
	order := 0
	side := func(url string) *blendSide {
		b, ok := merged[url]
		if !ok {
			b = &blendSide{url: url, order: order}
			order++
			merged[url] = b
		}
		return b
	}

	for _, h := range kwHits {
		b := side(h.URL)
		b.hasKeyword = true
		if topKw > 0 {
			b.kwScore = h.Score / topKw
		}
		if b.title == "" {
			b.title = h.Title
		}
		if b.domain == "" {
			b.domain = h.Domain
		}
		if b.snippet == "" && len(h.Fragments) > 0 {
			b.snippet = h.Fragments[0]
		}
	}
	for _, h := range vecHits {
		b := side(h.URL)
		b.hasVector = true
		if topVec > 0 && float64(h.Score)/topVec > b.vecScore {
			b.vecScore = float64(h.Score) / topVec
		}
		if b.title == "" {
			b.title = h.Title
		}
		if b.snippet == "" {
			b.snippet = highlightExcerpt(h.Chunk, query, vectorSnippetMax)
		}
	}

	results := make([]SearchResult, 0, len(merged))
	for _, b := range merged {
		blended := wKw*b.kwScore + wVec*b.vecScore
		reason := MatchBoth
		switch {
		case b.hasKeyword && !b.hasVector:
			reason = MatchKeyword
		case b.hasVector && !b.hasKeyword:
			reason = MatchSemantic
		}
		results = append(results, SearchResult{
			URL:          b.url,
			Title:        b.title,
			Snippet:      b.snippet,
			Score:        max(b.kwScore, b.vecScore),
			BlendedScore: blended,
			MatchReason:  reason,
			Domain:       b.domain,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].BlendedScore != results[j].BlendedScore {
			return results[i].BlendedScore > results[j].BlendedScore
		}
		return results[i].URL < results[j].URL
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// normalizeWeights scales the blend weights to sum to one, falling back to
// an even split on degenerate inputs.
func normalizeWeights(kw, vec float64) (float64, float64) {
	if kw < 0 || vec < 0 || kw+vec <= 0 {
		return 0.5, 0.5
	}
	sum := kw + vec
	return kw / sum, vec / sum
}

// highlightExcerpt caps a chunk excerpt and wraps query terms in <mark>
// tags so vector hits render like keyword fragments.
func highlightExcerpt(chunk, query string, maxLen int) string {
	excerpt := strings.Join(strings.Fields(chunk), " ")
	if len(excerpt) > maxLen {
		cut := strings.LastIndex(excerpt[:maxLen], " ")
		if cut <= 0 {
			cut = maxLen
		}
		excerpt = excerpt[:cut] + "…"
	}

	terms := KeywordSet(query)
	if len(terms) == 0 {
		return excerpt
	}
	marked := make([]string, 0, len(strings.Fields(excerpt)))
	for _, word := range strings.Fields(excerpt) {
		bare := strings.ToLower(strings.Trim(word, ".,;:!?()[]\"'"))
		matched := false
		for _, term := range terms {
			if bare == term {
				matched = true
				break
			}
		}
		if matched {
			marked = append(marked, "<mark>"+word+"</mark>")
		} else {
			marked = append(marked, word)
		}
	}
	return strings.Join(marked, " ")
}
