// Package zerolog provides logging decorators for core services.
package zerolog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/usefocal/focal"
)

// Ensure LoggingSearchService implements focal.SearchService.
var _ focal.SearchService = (*LoggingSearchService)(nil)

// LoggingSearchService wraps a SearchService with timing and outcome
// logging.
type LoggingSearchService struct {
	next   focal.SearchService
	logger zerolog.Logger
}

// NewLoggingSearchService creates a new LoggingSearchService.
func NewLoggingSearchService(next focal.SearchService, logger zerolog.Logger) *LoggingSearchService {
	return &LoggingSearchService{next: next, logger: logger}
}

// Search delegates to the wrapped service and logs the blended outcome.
func (s *LoggingSearchService) Search(ctx context.Context, query string, opts focal.SearchOptions) (resp *focal.SearchResponse, err error) {
	defer func(begin time.Time) {
		ev := s.logger.Info()
		if err != nil {
			ev = s.logger.Error().Err(err)
		}
		ev = ev.Str("query", query).Dur("elapsed", time.Since(begin))
		if resp != nil {
			ev = ev.Str("status", string(resp.Status)).
				Int("results", len(resp.Results)).
				Float64("confidence", resp.Confidence)
			if resp.JobID != "" {
				ev = ev.Str("job_id", resp.JobID)
			}
			if resp.KeywordFallback {
				ev = ev.Bool("keyword_fallback", true)
			}
		}
		ev.Msg("hybrid search")
	}(time.Now())
	return s.next.Search(ctx, query, opts)
}
