package zerolog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/usefocal/focal"
)

// Ensure LoggingLearnedWebService implements focal.LearnedWebService.
var _ focal.LearnedWebService = (*LoggingLearnedWebService)(nil)

// LoggingLearnedWebService wraps a LearnedWebService with debug timing on
// the write paths the crawl pipeline hits for every page.
type LoggingLearnedWebService struct {
	next   focal.LearnedWebService
	logger zerolog.Logger
}

// NewLoggingLearnedWebService creates a new LoggingLearnedWebService.
func NewLoggingLearnedWebService(next focal.LearnedWebService, logger zerolog.Logger) *LoggingLearnedWebService {
	return &LoggingLearnedWebService{next: next, logger: logger}
}

// UpsertDomain delegates to the wrapped service.
func (s *LoggingLearnedWebService) UpsertDomain(ctx context.Context, up focal.DomainUpsert) (id int64, err error) {
	defer func(begin time.Time) {
		s.event(err).Str("host", up.Host).Dur("elapsed", time.Since(begin)).Msg("upsert domain")
	}(time.Now())
	return s.next.UpsertDomain(ctx, up)
}

// FindDomain delegates to the wrapped service.
func (s *LoggingLearnedWebService) FindDomain(ctx context.Context, host string) (*focal.Domain, error) {
	return s.next.FindDomain(ctx, host)
}

// RecordDiscovery delegates to the wrapped service and logs first
// sightings at info.
func (s *LoggingLearnedWebService) RecordDiscovery(ctx context.Context, query, rawURL, reason, source string, score float64, crawlID string) (domainID int64, created bool, err error) {
	defer func(begin time.Time) {
		ev := s.event(err)
		if created && err == nil {
			ev = s.logger.Info()
		}
		ev.Str("query", query).Str("url", rawURL).Str("reason", reason).
			Float64("score", score).Bool("created", created).
			Dur("elapsed", time.Since(begin)).Msg("record discovery")
	}(time.Now())
	return s.next.RecordDiscovery(ctx, query, rawURL, reason, source, score, crawlID)
}

// TopDiscoveries delegates to the wrapped service.
func (s *LoggingLearnedWebService) TopDiscoveries(ctx context.Context, limit int) ([]*focal.Discovery, error) {
	return s.next.TopDiscoveries(ctx, limit)
}

// UpsertQueryEmbedding delegates to the wrapped service.
func (s *LoggingLearnedWebService) UpsertQueryEmbedding(ctx context.Context, query string, embedding []float32) (err error) {
	defer func(begin time.Time) {
		s.event(err).Str("query", query).Int("dims", len(embedding)).
			Dur("elapsed", time.Since(begin)).Msg("upsert query embedding")
	}(time.Now())
	return s.next.UpsertQueryEmbedding(ctx, query, embedding)
}

// SimilarDiscoverySeeds delegates to the wrapped service and logs how many
// seeds the similarity bootstrap produced.
func (s *LoggingLearnedWebService) SimilarDiscoverySeeds(ctx context.Context, embedding []float32, limit int) (seeds []string, err error) {
	defer func(begin time.Time) {
		s.event(err).Int("seeds", len(seeds)).Dur("elapsed", time.Since(begin)).
			Msg("similar discovery seeds")
	}(time.Now())
	return s.next.SimilarDiscoverySeeds(ctx, embedding, limit)
}

// DomainValueMap delegates to the wrapped service.
func (s *LoggingLearnedWebService) DomainValueMap(ctx context.Context) (map[string]float64, error) {
	return s.next.DomainValueMap(ctx)
}

// StartCrawl delegates to the wrapped service.
func (s *LoggingLearnedWebService) StartCrawl(ctx context.Context, crawl *focal.CrawlRecord) (err error) {
	defer func(begin time.Time) {
		s.event(err).Str("crawl_id", crawl.ID).Str("query", crawl.Query).
			Dur("elapsed", time.Since(begin)).Msg("start crawl")
	}(time.Now())
	return s.next.StartCrawl(ctx, crawl)
}

// CompleteCrawl delegates to the wrapped service.
func (s *LoggingLearnedWebService) CompleteCrawl(ctx context.Context, id string, pagesFetched, docsIndexed int) (err error) {
	defer func(begin time.Time) {
		s.event(err).Str("crawl_id", id).Int("pages_fetched", pagesFetched).
			Int("docs_indexed", docsIndexed).Dur("elapsed", time.Since(begin)).
			Msg("complete crawl")
	}(time.Now())
	return s.next.CompleteCrawl(ctx, id, pagesFetched, docsIndexed)
}

// RecordPage delegates to the wrapped service.
func (s *LoggingLearnedWebService) RecordPage(ctx context.Context, page *focal.PageRecord) (id int64, err error) {
	defer func(begin time.Time) {
		s.event(err).Str("url", page.URL).Dur("elapsed", time.Since(begin)).Msg("record page")
	}(time.Now())
	return s.next.RecordPage(ctx, page)
}

// RecordLink delegates to the wrapped service.
func (s *LoggingLearnedWebService) RecordLink(ctx context.Context, fromPageID int64, toURL, crawlID string) error {
	return s.next.RecordLink(ctx, fromPageID, toURL, crawlID)
}

// MarkIndexed delegates to the wrapped service.
func (s *LoggingLearnedWebService) MarkIndexed(ctx context.Context, urls []string, at time.Time) (err error) {
	defer func(begin time.Time) {
		s.event(err).Int("urls", len(urls)).Dur("elapsed", time.Since(begin)).Msg("mark indexed")
	}(time.Now())
	return s.next.MarkIndexed(ctx, urls, at)
}

// Close delegates to the wrapped service.
func (s *LoggingLearnedWebService) Close() error {
	return s.next.Close()
}

func (s *LoggingLearnedWebService) event(err error) *zerolog.Event {
	if err != nil {
		return s.logger.Error().Err(err)
	}
	return s.logger.Debug()
}
