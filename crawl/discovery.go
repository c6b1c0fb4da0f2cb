package crawl

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/usefocal/focal"
	"github.com/usefocal/focal/goquery"
)

var _ focal.DiscoveryService = (*Discoverer)(nil)

// Source boosts. Manual seeds outrank everything a machine proposed;
// curated registry entries sit just above neutral.
const (
	boostRegistry = 1.05
	boostLearned  = 1.1
	boostHTML     = 1.2
	boostManual   = 1.25
	boostEntity   = 1.15
	boostRepo     = 1.2
	boostSitemap  = 1.1
	boostLLM      = 1.15
)

// Freshness classes resolved from the candidate's source and URL.
const (
	freshSitemap = 1.0
	freshFeed    = 0.9
	freshBlog    = 0.6
	freshGeneric = 0.2
)

// Expansion caps keep one hyperactive feed or sitemap from crowding out
// every other source.
const (
	feedEntryLimit    = 10
	sitemapEntryLimit = 25
	learnedFoldLimit  = 20
	llmSuggestLimit   = 10
)

// ScoreWeights are the linear weights of the candidate score:
// Base·Boost + ValuePrior·value + Freshness·freshness + Authority·authority.
type ScoreWeights struct {
	Base       float64
	ValuePrior float64
	Freshness  float64
	Authority  float64
}

// DefaultScoreWeights returns the standard weighting.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Base: 1.0, ValuePrior: 0.5, Freshness: 0.3, Authority: 0.2}
}

// Discoverer merges the curated seed registry, the learned web, caller
// hints and optional LLM suggestions into one scored candidate list.
// Every collaborator except LearnedWeb may be nil; a nil collaborator
// simply contributes nothing.
type Discoverer struct {
	registry   focal.SeedRegistry
	learnedWeb focal.LearnedWebService
	feeds      focal.FeedFetcher
	sitemaps   focal.SitemapService
	suggester  focal.Suggester
	authority  focal.AuthorityIndex
	weights    ScoreWeights
	logger     zerolog.Logger
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

// WithRegistry sets the curated seed registry.
func WithRegistry(r focal.SeedRegistry) DiscovererOption {
	return func(d *Discoverer) { d.registry = r }
}

// WithFeeds sets the fetcher used to expand registry feed URLs.
func WithFeeds(f focal.FeedFetcher) DiscovererOption {
	return func(d *Discoverer) { d.feeds = f }
}

// WithSitemaps sets the service used to expand registry sitemap URLs.
func WithSitemaps(s focal.SitemapService) DiscovererOption {
	return func(d *Discoverer) { d.sitemaps = s }
}

// WithSuggester sets the LLM URL suggester consulted when a request asks
// for LLM help.
func WithSuggester(s focal.Suggester) DiscovererOption {
	return func(d *Discoverer) { d.suggester = s }
}

// WithAuthority sets the host-authority index.
func WithAuthority(a focal.AuthorityIndex) DiscovererOption {
	return func(d *Discoverer) { d.authority = a }
}

// WithScoreWeights overrides the default score weights.
func WithScoreWeights(w ScoreWeights) DiscovererOption {
	return func(d *Discoverer) { d.weights = w }
}

// WithDiscovererLogger sets the logger.
func WithDiscovererLogger(logger zerolog.Logger) DiscovererOption {
	return func(d *Discoverer) { d.logger = logger }
}

// NewDiscoverer creates a discovery engine backed by the learned web.
func NewDiscoverer(learnedWeb focal.LearnedWebService, opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		learnedWeb: learnedWeb,
		weights:    DefaultScoreWeights(),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover builds the scored candidate list for a query. Individual
// sources degrade softly: a failing registry, feed or suggester is logged
// and skipped so the remaining sources still produce a frontier.
func (d *Discoverer) Discover(ctx context.Context, req focal.DiscoveryRequest) ([]focal.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keywords := focal.KeywordSet(req.Query)

	var raw []focal.Candidate
	raw = append(raw, d.registryCandidates(ctx, keywords)...)
	raw = append(raw, d.learnedCandidates(ctx)...)
	raw = append(raw, d.hintCandidates(req.Hints)...)
	raw = append(raw, seedCandidates(req.ExtraSeeds, "manual", boostManual)...)
	raw = append(raw, seedCandidates(req.SimilarSeeds, "similar", boostLearned)...)
	if req.UseLLM && d.suggester != nil {
		raw = append(raw, d.suggestedCandidates(ctx, req)...)
	}

	candidates, err := d.finalize(ctx, raw)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}
	return candidates, nil
}

// registryCandidates folds in curated seeds whose keywords overlap the
// query, falling back to the whole registry when nothing overlaps. Seeds
// carrying a feed or sitemap URL are expanded into dated candidates.
func (d *Discoverer) registryCandidates(ctx context.Context, keywords []string) []focal.Candidate {
	if d.registry == nil {
		return nil
	}
	seeds, err := d.registry.Seeds(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("seed registry unavailable, skipping")
		return nil
	}

	matched := make([]focal.Seed, 0, len(seeds))
	for _, seed := range seeds {
		if keywordOverlap(seed.Keywords, keywords) {
			matched = append(matched, seed)
		}
	}
	if len(matched) == 0 {
		matched = seeds
	}

	var out []focal.Candidate
	for _, seed := range matched {
		boost := boostRegistry * orOne(seed.Trust) * orOne(seed.Boost)
		c := focal.Candidate{
			URL:    seed.URL,
			Source: "registry:" + seed.ID,
			Boost:  boost,
		}
		if hasBlogTag(seed.Tags) {
			c.Freshness = freshBlog
		}
		out = append(out, c)

		if seed.Feed != "" && d.feeds != nil {
			out = append(out, d.feedCandidates(ctx, seed, boost)...)
		}
		if seed.Sitemap != "" && d.sitemaps != nil {
			out = append(out, d.sitemapCandidates(ctx, seed, boost)...)
		}
	}
	return out
}

func (d *Discoverer) feedCandidates(ctx context.Context, seed focal.Seed, boost float64) []focal.Candidate {
	entries, err := d.feeds.Entries(ctx, seed.Feed)
	if err != nil {
		d.logger.Warn().Err(err).Str("seed", seed.ID).Str("feed", seed.Feed).Msg("feed expansion failed")
		return nil
	}
	if len(entries) > feedEntryLimit {
		entries = entries[:feedEntryLimit]
	}
	out := make([]focal.Candidate, 0, len(entries))
	for _, entry := range entries {
		out = append(out, focal.Candidate{
			URL:       entry.URL,
			Source:    "feed:" + seed.ID,
			Boost:     boost,
			Freshness: freshFeed,
		})
	}
	return out
}

func (d *Discoverer) sitemapCandidates(ctx context.Context, seed focal.Seed, boost float64) []focal.Candidate {
	urls, err := d.sitemaps.DiscoverURLs(ctx, seed.Sitemap)
	if err != nil {
		d.logger.Warn().Err(err).Str("seed", seed.ID).Str("sitemap", seed.Sitemap).Msg("sitemap expansion failed")
		return nil
	}
	if len(urls) > sitemapEntryLimit {
		urls = urls[:sitemapEntryLimit]
	}
	out := make([]focal.Candidate, 0, len(urls))
	for _, u := range urls {
		out = append(out, focal.Candidate{
			URL:       u,
			Source:    "sitemap:" + seed.ID,
			Boost:     boost,
			Freshness: freshSitemap,
		})
	}
	return out
}

// learnedCandidates folds in the best previously discovered URLs. Their
// recorded score becomes the value prior.
func (d *Discoverer) learnedCandidates(ctx context.Context) []focal.Candidate {
	if d.learnedWeb == nil {
		return nil
	}
	rows, err := d.learnedWeb.TopDiscoveries(ctx, learnedFoldLimit)
	if err != nil {
		d.logger.Warn().Err(err).Msg("learned discoveries unavailable, skipping")
		return nil
	}
	var out []focal.Candidate
	for _, row := range rows {
		if row.Score <= 0 {
			continue
		}
		out = append(out, focal.Candidate{
			URL:        row.URL,
			Source:     "learned",
			Boost:      boostLearned,
			ValuePrior: row.Score,
		})
	}
	return out
}

// hintCandidates dispatches the closed set of hint variants.
func (d *Discoverer) hintCandidates(hints []focal.DiscoveryHint) []focal.Candidate {
	var out []focal.Candidate
	for _, hint := range hints {
		switch h := hint.(type) {
		case focal.HTMLHint:
			out = append(out, d.htmlCandidates(h)...)
		case focal.EntityHint:
			urls := append([]string{}, h.Sitelinks...)
			if h.OfficialWebsite != "" {
				urls = append(urls, h.OfficialWebsite)
			}
			out = append(out, seedCandidates(urls, "entity", boostEntity)...)
		case focal.RepoHint:
			out = append(out, repoCandidates(h)...)
		case focal.SitemapHint:
			for _, c := range seedCandidates(h.URLs, "sitemap", boostSitemap) {
				c.Freshness = freshSitemap
				out = append(out, c)
			}
		}
	}
	return out
}

func (d *Discoverer) htmlCandidates(h focal.HTMLHint) []focal.Candidate {
	anchors, err := goquery.ExtractAnchors(h.HTML, h.BaseURL)
	if err != nil {
		d.logger.Warn().Err(err).Msg("html hint unparseable, skipping")
		return nil
	}
	out := make([]focal.Candidate, 0, len(anchors))
	for _, a := range anchors {
		out = append(out, focal.Candidate{URL: a.URL, Source: "html", Boost: boostHTML})
	}
	return out
}

// repoCandidates expands a repository record into its homepage and the
// usual documentation paths.
func repoCandidates(h focal.RepoHint) []focal.Candidate {
	var urls []string
	if h.Homepage != "" {
		urls = append(urls, h.Homepage)
	}
	if repo := strings.TrimSuffix(h.RepoURL, "/"); repo != "" {
		urls = append(urls, repo+"/wiki", repo+"/tree/main/docs")
	}
	return seedCandidates(urls, "repo", boostRepo)
}

func (d *Discoverer) suggestedCandidates(ctx context.Context, req focal.DiscoveryRequest) []focal.Candidate {
	limit := req.Limit
	if limit <= 0 || limit > llmSuggestLimit {
		limit = llmSuggestLimit
	}
	urls, err := d.suggester.SuggestURLs(ctx, req.Query, req.Model, limit)
	if err != nil {
		d.logger.Warn().Err(err).Msg("url suggestion failed, skipping")
		return nil
	}
	return seedCandidates(urls, "llm", boostLLM)
}

// finalize sanitizes URLs, resolves the remaining score inputs, scores
// each candidate and deduplicates by URL keeping the best score. The
// result is sorted by score descending with a URL tie-break.
func (d *Discoverer) finalize(ctx context.Context, raw []focal.Candidate) ([]focal.Candidate, error) {
	values := d.valueMap(ctx)

	best := make(map[string]focal.Candidate)
	for _, c := range raw {
		clean, ok := focal.SanitizeURL(c.URL, nil)
		if !ok {
			continue
		}
		c.URL = clean

		host := hostOf(clean)
		if c.ValuePrior == 0 {
			if v, ok := values[host]; ok && v > 0 {
				c.ValuePrior = v
			} else {
				c.ValuePrior = heuristicValue(clean)
			}
		}
		if c.Freshness == 0 {
			c.Freshness = freshnessFor(c.Source, clean)
		}
		if d.authority != nil {
			c.Authority = d.authority.Authority(host)
		}
		c.Score = d.weights.Base*c.Boost +
			d.weights.ValuePrior*c.ValuePrior +
			d.weights.Freshness*c.Freshness +
			d.weights.Authority*c.Authority

		if prev, ok := best[clean]; !ok || c.Score > prev.Score {
			best[clean] = c
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]focal.Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}

func (d *Discoverer) valueMap(ctx context.Context) map[string]float64 {
	if d.learnedWeb == nil {
		return nil
	}
	values, err := d.learnedWeb.DomainValueMap(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("domain value map unavailable, using heuristics")
		return nil
	}
	return values
}

func seedCandidates(urls []string, source string, boost float64) []focal.Candidate {
	out := make([]focal.Candidate, 0, len(urls))
	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		out = append(out, focal.Candidate{URL: u, Source: source, Boost: boost})
	}
	return out
}

// heuristicValue estimates a value prior for hosts the learned web has
// never seen, from the TLD and whether the path looks documentation-like.
func heuristicValue(rawURL string) float64 {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0.3
	}
	host := strings.ToLower(u.Hostname())

	v := 0.3
	switch {
	case strings.HasSuffix(host, ".edu"), strings.HasSuffix(host, ".gov"):
		v = 0.8
	case strings.HasSuffix(host, ".org"):
		v = 0.6
	case strings.HasSuffix(host, ".io"), strings.HasSuffix(host, ".dev"):
		v = 0.5
	}

	p := strings.ToLower(u.Path)
	for _, marker := range []string{"/docs", "/documentation", "/reference", "/guide", "/manual", "/wiki"} {
		if strings.Contains(p, marker) {
			v += 0.2
			break
		}
	}
	if v > 1 {
		v = 1
	}
	return v
}

// freshnessFor classifies a candidate by how dated its source is: sitemap
// entries are current, feed entries nearly so, blog and news URLs age
// quickly, and everything else gets the generic floor.
func freshnessFor(source, rawURL string) float64 {
	switch {
	case strings.HasPrefix(source, "sitemap"):
		return freshSitemap
	case strings.HasPrefix(source, "feed"):
		return freshFeed
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return freshGeneric
	}
	hostAndPath := strings.ToLower(u.Hostname() + u.Path)
	if strings.Contains(hostAndPath, "blog") || strings.Contains(hostAndPath, "news") {
		return freshBlog
	}
	return freshGeneric
}

func keywordOverlap(seedKeywords, queryKeywords []string) bool {
	for _, sk := range seedKeywords {
		for _, qk := range queryKeywords {
			if strings.EqualFold(sk, qk) {
				return true
			}
		}
	}
	return false
}

func hasBlogTag(tags []string) bool {
	for _, tag := range tags {
		switch strings.ToLower(tag) {
		case "blog", "news":
			return true
		}
	}
	return false
}

func orOne(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}
