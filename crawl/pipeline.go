package crawl

import (
	"context"
	"crypto/md5"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/usefocal/focal"
	"github.com/usefocal/focal/bloom"
)

// Pipeline defaults.
const (
	DefaultCrawlBudget = 20

	// Discovery is asked for more candidates than the budget so the
	// per-host cap still leaves enough to fill the frontier.
	discoveryOversample = 4
	minDiscoveryLimit   = 40
	similarSeedLimit    = 10
	seenFilterSize      = 10000
	seenFilterFPRate    = 0.01
)

// RunParams carries one focused-crawl request into the pipeline.
type RunParams struct {
	JobID       string
	Query       string
	Budget      int
	UseLLM      bool
	Model       string
	ManualSeeds []string
	Progress    focal.ProgressFunc
}

// Pipeline executes a focused crawl end to end: discovery, frontier,
// fetching, normalization and indexing, with every page and link recorded
// in the learned web.
type Pipeline struct {
	Discovery  focal.DiscoveryService
	Crawler    focal.Crawler
	LearnedWeb focal.LearnedWebService
	Normalizer *Normalizer
	Index      focal.IndexService
	Vectors    focal.VectorStore
	Embedder   focal.Embedder
	Raw        focal.RawCrawlStore
	Normalized focal.NormalizedStore
	Reranker   focal.Reranker

	PerHostCap   int
	RerankMargin float64
	Logger       zerolog.Logger
}

// Run crawls for one query and returns the final stats. Progress is
// reported through params.Progress as each stage begins and completes;
// the frontier is fully built before the first fetch and normalization is
// fully done before the first index write. Vector-side failures park
// documents for the pending worker and never fail the run.
func (p *Pipeline) Run(ctx context.Context, params RunParams) (focal.JobStats, error) {
	var stats focal.JobStats
	emit := func(stage, message string) {
		if params.Progress != nil {
			params.Progress(stage, message, stats)
		}
	}

	budget := params.Budget
	if budget <= 0 {
		budget = DefaultCrawlBudget
	}

	emit(focal.StageStarting, fmt.Sprintf("starting focused crawl for %q", params.Query))

	// Touch the raw batch file first so the crawls row can carry its path.
	rawPath, err := p.Raw.Append(ctx, params.JobID, nil)
	if err != nil {
		return stats, fmt.Errorf("create raw batch: %w", err)
	}

	emit(focal.StageFrontierStart, "discovering candidate URLs")
	frontier, err := p.buildFrontier(ctx, params, budget)
	if err != nil {
		return stats, err
	}
	stats.SeedCount = len(frontier)

	crawl := &focal.CrawlRecord{
		ID:        params.JobID,
		Query:     params.Query,
		StartedAt: time.Now().UTC(),
		Budget:    budget,
		SeedCount: len(frontier),
		UseLLM:    params.UseLLM,
		Model:     params.Model,
		RawPath:   rawPath,
	}
	if err := p.LearnedWeb.StartCrawl(ctx, crawl); err != nil {
		return stats, fmt.Errorf("start crawl record: %w", err)
	}

	if len(frontier) == 0 {
		emit(focal.StageFrontierEmpty, "no crawlable candidates found")
		p.completeCrawl(ctx, params.JobID, &stats)
		return stats, nil
	}
	p.recordDiscoveries(ctx, params, frontier, &stats)
	emit(focal.StageFrontierComplete, fmt.Sprintf("frontier ready with %d URLs", len(frontier)))

	emit(focal.StageCrawlStart, "fetching pages")
	recs := p.fetchFrontier(ctx, params, frontier, &stats, emit)
	if stats.PagesFetched == 0 {
		p.completeCrawl(ctx, params.JobID, &stats)
		return stats, focal.Errorf(focal.EUNAVAILABLE, "no pages could be fetched")
	}
	emit(focal.StageCrawlComplete, fmt.Sprintf("fetched %d pages", stats.PagesFetched))

	emit(focal.StageNormalizeStart, "normalizing pages")
	docs, err := p.Normalizer.NormalizeBatch(ctx, recs)
	if err != nil {
		return stats, err
	}
	stats.NormalizedDocs = len(docs)
	if len(docs) > 0 {
		if err := p.Normalized.Append(ctx, docs); err != nil {
			return stats, fmt.Errorf("persist normalized batch: %w", err)
		}
	}
	emit(focal.StageNormalizeComplete, fmt.Sprintf("normalized %d documents", len(docs)))

	if len(docs) == 0 {
		emit(focal.StageIndexSkipped, "nothing to index")
		p.completeCrawl(ctx, params.JobID, &stats)
		return stats, nil
	}

	emit(focal.StageIndexStart, "indexing documents")
	if err := p.indexBatch(ctx, params.JobID, docs, &stats); err != nil {
		return stats, err
	}

	p.markIndexed(ctx, docs)
	p.completeCrawl(ctx, params.JobID, &stats)
	emit(focal.StageIndexComplete, fmt.Sprintf("indexed %d documents", stats.DocsIndexed))
	return stats, nil
}

// buildFrontier asks discovery for candidates, supplements them with
// seeds from similar past queries, and orders the result for a polite
// walk.
func (p *Pipeline) buildFrontier(ctx context.Context, params RunParams, budget int) ([]focal.Candidate, error) {
	limit := budget * discoveryOversample
	if limit < minDiscoveryLimit {
		limit = minDiscoveryLimit
	}

	req := focal.DiscoveryRequest{
		Query:        params.Query,
		Limit:        limit,
		ExtraSeeds:   params.ManualSeeds,
		SimilarSeeds: p.similarSeeds(ctx, params.Query),
		UseLLM:       params.UseLLM,
		Model:        params.Model,
	}
	candidates, err := p.Discovery.Discover(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	opts := FrontierOptions{
		Budget:       budget,
		PerHostCap:   p.PerHostCap,
		RerankMargin: p.RerankMargin,
		Query:        params.Query,
		Model:        params.Model,
	}
	if params.UseLLM {
		opts.Reranker = p.Reranker
	}
	return BuildFrontier(ctx, candidates, opts), nil
}

// similarSeeds embeds the query, stores the embedding for future
// lookups, and returns the best URLs of sufficiently similar past
// queries. Any failure just means no supplements this run.
func (p *Pipeline) similarSeeds(ctx context.Context, query string) []string {
	if p.Embedder == nil {
		return nil
	}
	vecs, err := p.Embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		p.Logger.Debug().Err(err).Msg("query embedding unavailable, skipping similarity seeds")
		return nil
	}
	if err := p.LearnedWeb.UpsertQueryEmbedding(ctx, query, vecs[0]); err != nil {
		p.Logger.Warn().Err(err).Msg("storing query embedding failed")
	}
	seeds, err := p.LearnedWeb.SimilarDiscoverySeeds(ctx, vecs[0], similarSeedLimit)
	if err != nil {
		p.Logger.Warn().Err(err).Msg("similarity seed lookup failed")
		return nil
	}
	return seeds
}

// recordDiscoveries writes a discoveries row for every frontier member
// and counts first-sighted hosts.
func (p *Pipeline) recordDiscoveries(ctx context.Context, params RunParams, frontier []focal.Candidate, stats *focal.JobStats) {
	for _, c := range frontier {
		_, created, err := p.LearnedWeb.RecordDiscovery(ctx, params.Query, c.URL, sourceClass(c.Source), c.Source, c.Score, params.JobID)
		if err != nil {
			p.Logger.Warn().Err(err).Str("url", c.URL).Msg("recording discovery failed")
			continue
		}
		if created {
			stats.NewDomains++
		}
	}
}

// fetchFrontier walks the frontier in order, appending raw records and
// recording pages and links as it goes. Fetch failures and skippable
// pages count toward Skipped; the walk continues.
func (p *Pipeline) fetchFrontier(ctx context.Context, params RunParams, frontier []focal.Candidate, stats *focal.JobStats, emit func(stage, message string)) []*focal.RawRecord {
	seen := bloom.NewSeenSet(seenFilterSize, seenFilterFPRate)
	var recs []*focal.RawRecord
	for i, c := range frontier {
		if ctx.Err() != nil {
			break
		}
		if seen.Visit(c.URL) {
			stats.Skipped++
			continue
		}

		res, err := p.Crawler.Fetch(ctx, c.URL)
		if err != nil {
			p.Logger.Warn().Err(err).Str("url", c.URL).Msg("fetch failed")
			stats.Skipped++
			continue
		}
		if res == nil {
			stats.Skipped++
			continue
		}
		stats.PagesFetched++

		rec := &focal.RawRecord{
			URL:         res.URL,
			Status:      res.Status,
			Title:       res.Title,
			HTML:        res.HTML,
			FetchedAt:   res.FetchedAt,
			ContentType: res.ContentType,
			Outlinks:    res.Outlinks,
		}
		recs = append(recs, rec)
		if _, err := p.Raw.Append(ctx, params.JobID, []*focal.RawRecord{rec}); err != nil {
			p.Logger.Warn().Err(err).Str("url", c.URL).Msg("appending raw record failed")
		}

		p.recordPage(ctx, params.JobID, res)
		emit(focal.StageCrawlStart, fmt.Sprintf("fetched %d/%d: %s", i+1, len(frontier), c.URL))
	}
	return recs
}

// recordPage writes the page and its outgoing links into the learned web.
func (p *Pipeline) recordPage(ctx context.Context, crawlID string, res *focal.CrawlResult) {
	host := hostOf(res.URL)
	if host == "" {
		return
	}
	now := time.Now().UTC()
	domainID, err := p.LearnedWeb.UpsertDomain(ctx, focal.DomainUpsert{
		Host:        host,
		LastSeen:    now,
		LastCrawlAt: now,
	})
	if err != nil {
		p.Logger.Warn().Err(err).Str("host", host).Msg("domain upsert failed")
		return
	}

	pageID, err := p.LearnedWeb.RecordPage(ctx, &focal.PageRecord{
		URL:       res.URL,
		DomainID:  domainID,
		Title:     res.Title,
		Status:    res.Status,
		SimHash:   focal.SimHash64(res.Text),
		MD5:       fmt.Sprintf("%x", md5.Sum([]byte(res.Text))),
		FetchedAt: res.FetchedAt,
		CrawlID:   crawlID,
	})
	if err != nil {
		p.Logger.Warn().Err(err).Str("url", res.URL).Msg("page record failed")
		return
	}

	for _, link := range res.Outlinks {
		if err := p.LearnedWeb.RecordLink(ctx, pageID, link, crawlID); err != nil {
			p.Logger.Warn().Err(err).Str("url", res.URL).Msg("link record failed")
			break
		}
	}
}

// indexBatch applies the normalized batch to the keyword index and the
// vector store concurrently. Keyword-side failure fails the run; vector
// failures are absorbed, with unavailable embeddings parked in the
// pending queue by the store itself.
func (p *Pipeline) indexBatch(ctx context.Context, jobID string, docs []*focal.Document, stats *focal.JobStats) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		idx, err := p.Index.IncrementalIndex(gctx, docs)
		if err != nil {
			return fmt.Errorf("incremental index: %w", err)
		}
		stats.DocsIndexed = idx.Added
		stats.Deduped = idx.Deduped
		stats.Skipped += idx.Skipped
		return nil
	})

	g.Go(func() error {
		if p.Vectors == nil {
			return nil
		}
		for _, doc := range docs {
			res, err := p.Vectors.UpsertDocument(gctx, focal.UpsertRequest{
				Text:  doc.Body,
				URL:   doc.URL,
				Title: doc.Title,
				Metadata: map[string]any{
					"lang":   doc.Lang,
					"domain": doc.Domain(),
				},
				JobID: jobID,
			})
			if err != nil {
				p.Logger.Warn().Err(err).Str("url", doc.URL).Msg("vector upsert failed")
				continue
			}
			if res.Queued {
				p.Logger.Info().Str("url", doc.URL).Msg("embedder unavailable, document queued for later")
				continue
			}
			if !res.Skipped {
				stats.Embedded++
			}
		}
		return nil
	})

	return g.Wait()
}

func (p *Pipeline) markIndexed(ctx context.Context, docs []*focal.Document) {
	urls := make([]string, 0, len(docs))
	for _, doc := range docs {
		urls = append(urls, doc.URL)
	}
	if err := p.LearnedWeb.MarkIndexed(ctx, urls, time.Now().UTC()); err != nil {
		p.Logger.Warn().Err(err).Msg("marking indexed URLs failed")
	}
}

func (p *Pipeline) completeCrawl(ctx context.Context, crawlID string, stats *focal.JobStats) {
	if err := p.LearnedWeb.CompleteCrawl(ctx, crawlID, stats.PagesFetched, stats.DocsIndexed); err != nil {
		p.Logger.Warn().Err(err).Str("crawl_id", crawlID).Msg("completing crawl record failed")
	}
}

// sourceClass reduces a candidate source like "registry:grafana" to its
// class for the discovery reason column.
func sourceClass(source string) string {
	class, _, _ := strings.Cut(source, ":")
	return class
}
