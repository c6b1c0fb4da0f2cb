package mock

import (
	"context"

	"github.com/usefocal/focal"
)

var _ focal.SearchService = (*SearchService)(nil)

// SearchService is a mock implementation of focal.SearchService.
type SearchService struct {
	SearchFn func(ctx context.Context, query string, opts focal.SearchOptions) (*focal.SearchResponse, error)
}

func (s *SearchService) Search(ctx context.Context, query string, opts focal.SearchOptions) (*focal.SearchResponse, error) {
	return s.SearchFn(ctx, query, opts)
}
