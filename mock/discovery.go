package mock

import (
	"context"

	"github.com/usefocal/focal"
)

var _ focal.DiscoveryService = (*DiscoveryService)(nil)

// DiscoveryService is a mock implementation of focal.DiscoveryService.
type DiscoveryService struct {
	DiscoverFn func(ctx context.Context, req focal.DiscoveryRequest) ([]focal.Candidate, error)
}

func (s *DiscoveryService) Discover(ctx context.Context, req focal.DiscoveryRequest) ([]focal.Candidate, error) {
	return s.DiscoverFn(ctx, req)
}

var _ focal.Suggester = (*Suggester)(nil)

// Suggester is a mock implementation of focal.Suggester.
type Suggester struct {
	SuggestURLsFn func(ctx context.Context, query, model string, limit int) ([]string, error)
}

func (s *Suggester) SuggestURLs(ctx context.Context, query, model string, limit int) ([]string, error) {
	return s.SuggestURLsFn(ctx, query, model, limit)
}

var _ focal.Reranker = (*Reranker)(nil)

// Reranker is a mock implementation of focal.Reranker.
type Reranker struct {
	RerankFn func(ctx context.Context, query string, urls []string, model string) ([]string, error)
}

func (r *Reranker) Rerank(ctx context.Context, query string, urls []string, model string) ([]string, error) {
	return r.RerankFn(ctx, query, urls, model)
}

var _ focal.SeedRegistry = (*SeedRegistry)(nil)

// SeedRegistry is a mock implementation of focal.SeedRegistry.
type SeedRegistry struct {
	SeedsFn func(ctx context.Context) ([]focal.Seed, error)
}

func (r *SeedRegistry) Seeds(ctx context.Context) ([]focal.Seed, error) {
	return r.SeedsFn(ctx)
}

var _ focal.AuthorityIndex = (*AuthorityIndex)(nil)

// AuthorityIndex is a mock implementation of focal.AuthorityIndex.
type AuthorityIndex struct {
	AuthorityFn func(host string) float64
}

func (a *AuthorityIndex) Authority(host string) float64 {
	return a.AuthorityFn(host)
}
