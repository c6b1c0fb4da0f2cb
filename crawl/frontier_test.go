package crawl_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usefocal/focal"
	"github.com/usefocal/focal/crawl"
	"github.com/usefocal/focal/mock"
)

func cand(rawURL string, score float64) focal.Candidate {
	return focal.Candidate{URL: rawURL, Source: "registry:test", Score: score}
}

func hostname(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Hostname()
}

func frontierURLs(frontier []focal.Candidate) []string {
	urls := make([]string, 0, len(frontier))
	for _, c := range frontier {
		urls = append(urls, c.URL)
	}
	return urls
}

func TestBuildFrontier(t *testing.T) {
	t.Parallel()

	t.Run("orders by score with URL tie-break", func(t *testing.T) {
		t.Parallel()
		frontier := crawl.BuildFrontier(context.Background(), []focal.Candidate{
			cand("https://a.example/1", 0.5),
			cand("https://b.example/1", 0.9),
			cand("https://d.example/x", 0.5),
			cand("https://c.example/1", 0.7),
		}, crawl.FrontierOptions{})

		assert.Equal(t, []string{
			"https://b.example/1",
			"https://c.example/1",
			"https://a.example/1",
			"https://d.example/x",
		}, frontierURLs(frontier))
	})

	t.Run("caps candidates per host", func(t *testing.T) {
		t.Parallel()
		frontier := crawl.BuildFrontier(context.Background(), []focal.Candidate{
			cand("https://x.example/1", 1.0),
			cand("https://x.example/2", 0.9),
			cand("https://x.example/3", 0.8),
			cand("https://x.example/4", 0.7),
			cand("https://x.example/5", 0.6),
			cand("https://y.example/1", 0.5),
		}, crawl.FrontierOptions{})

		assert.Equal(t, []string{
			"https://x.example/1",
			"https://y.example/1",
			"https://x.example/2",
			"https://x.example/3",
		}, frontierURLs(frontier))
	})

	t.Run("honors a custom per-host cap", func(t *testing.T) {
		t.Parallel()
		frontier := crawl.BuildFrontier(context.Background(), []focal.Candidate{
			cand("https://x.example/1", 1.0),
			cand("https://x.example/2", 0.9),
			cand("https://y.example/1", 0.5),
		}, crawl.FrontierOptions{PerHostCap: 1})

		assert.Equal(t, []string{
			"https://x.example/1",
			"https://y.example/1",
		}, frontierURLs(frontier))
	})

	t.Run("never places two URLs from one host side by side while others remain", func(t *testing.T) {
		t.Parallel()
		frontier := crawl.BuildFrontier(context.Background(), []focal.Candidate{
			cand("https://a.example/1", 0.9),
			cand("https://a.example/2", 0.8),
			cand("https://a.example/3", 0.7),
			cand("https://b.example/1", 0.85),
			cand("https://b.example/2", 0.75),
			cand("https://b.example/3", 0.65),
			cand("https://c.example/1", 0.6),
			cand("https://c.example/2", 0.5),
			cand("https://c.example/3", 0.4),
		}, crawl.FrontierOptions{})

		require.Len(t, frontier, 9)
		for i := 1; i < len(frontier); i++ {
			assert.NotEqual(t, hostname(t, frontier[i-1].URL), hostname(t, frontier[i].URL),
				"adjacent URLs at %d and %d share a host", i-1, i)
		}
	})

	t.Run("budget keeps the best scored after the host cap", func(t *testing.T) {
		t.Parallel()
		frontier := crawl.BuildFrontier(context.Background(), []focal.Candidate{
			cand("https://x.example/1", 0.9),
			cand("https://x.example/2", 0.8),
			cand("https://x.example/3", 0.7),
			cand("https://x.example/4", 0.6),
			cand("https://y.example/1", 0.85),
			cand("https://y.example/2", 0.3),
		}, crawl.FrontierOptions{PerHostCap: 3, Budget: 4})

		require.Len(t, frontier, 4)
		byHost := map[string]int{}
		for _, c := range frontier {
			byHost[hostname(t, c.URL)]++
		}
		assert.Equal(t, 3, byHost["x.example"])
		assert.Equal(t, 1, byHost["y.example"])
		assert.Equal(t, []string{
			"https://x.example/1",
			"https://y.example/1",
			"https://x.example/2",
			"https://x.example/3",
		}, frontierURLs(frontier))
	})

	t.Run("reranker reorders the leading cluster", func(t *testing.T) {
		t.Parallel()
		var gotQuery, gotModel string
		var gotURLs []string
		reranker := &mock.Reranker{
			RerankFn: func(_ context.Context, query string, urls []string, model string) ([]string, error) {
				gotQuery, gotModel, gotURLs = query, model, urls
				reversed := make([]string, len(urls))
				for i, u := range urls {
					reversed[len(urls)-1-i] = u
				}
				return reversed, nil
			},
		}

		frontier := crawl.BuildFrontier(context.Background(), []focal.Candidate{
			cand("https://a.example/1", 1.0),
			cand("https://b.example/1", 0.95),
			cand("https://c.example/1", 0.5),
		}, crawl.FrontierOptions{Reranker: reranker, Query: "rust generics", Model: "gemini-2.5-flash"})

		assert.Equal(t, "rust generics", gotQuery)
		assert.Equal(t, "gemini-2.5-flash", gotModel)
		assert.Equal(t, []string{"https://a.example/1", "https://b.example/1"}, gotURLs)
		assert.Equal(t, []string{
			"https://b.example/1",
			"https://a.example/1",
			"https://c.example/1",
		}, frontierURLs(frontier))
	})

	t.Run("reranker reversal survives the budget cut", func(t *testing.T) {
		t.Parallel()
		reranker := &mock.Reranker{
			RerankFn: func(_ context.Context, _ string, urls []string, _ string) ([]string, error) {
				reversed := make([]string, len(urls))
				for i, u := range urls {
					reversed[len(urls)-1-i] = u
				}
				return reversed, nil
			},
		}

		frontier := crawl.BuildFrontier(context.Background(), []focal.Candidate{
			cand("https://x.example/1", 0.9),
			cand("https://x.example/2", 0.8),
			cand("https://x.example/3", 0.7),
			cand("https://x.example/4", 0.6),
			cand("https://y.example/1", 0.85),
			cand("https://y.example/2", 0.3),
		}, crawl.FrontierOptions{PerHostCap: 3, Budget: 4, RerankMargin: 0.15, Reranker: reranker})

		// The cluster within 0.15 of the 0.9 leader is the first three
		// slots; the reranker reverses them, the tail stays put.
		assert.Equal(t, []string{
			"https://x.example/2",
			"https://y.example/1",
			"https://x.example/1",
			"https://x.example/3",
		}, frontierURLs(frontier))
	})

	t.Run("keeps order when the reranker fails", func(t *testing.T) {
		t.Parallel()
		reranker := &mock.Reranker{
			RerankFn: func(_ context.Context, _ string, urls []string, _ string) ([]string, error) {
				return urls, focal.Errorf(focal.EUNAVAILABLE, "llm unreachable")
			},
		}

		frontier := crawl.BuildFrontier(context.Background(), []focal.Candidate{
			cand("https://a.example/1", 1.0),
			cand("https://b.example/1", 0.95),
		}, crawl.FrontierOptions{Reranker: reranker})

		assert.Equal(t, []string{"https://a.example/1", "https://b.example/1"}, frontierURLs(frontier))
	})

	t.Run("keeps order on malformed reranker output", func(t *testing.T) {
		t.Parallel()
		for name, ranked := range map[string][]string{
			"wrong length":  {"https://a.example/1"},
			"duplicate URL": {"https://a.example/1", "https://a.example/1"},
			"unknown URL":   {"https://a.example/1", "https://z.example/9"},
		} {
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				reranker := &mock.Reranker{
					RerankFn: func(_ context.Context, _ string, _ []string, _ string) ([]string, error) {
						return ranked, nil
					},
				}

				frontier := crawl.BuildFrontier(context.Background(), []focal.Candidate{
					cand("https://a.example/1", 1.0),
					cand("https://b.example/1", 0.95),
				}, crawl.FrontierOptions{Reranker: reranker})

				assert.Equal(t, []string{"https://a.example/1", "https://b.example/1"}, frontierURLs(frontier))
			})
		}
	})

	t.Run("skips the reranker when the leader stands alone", func(t *testing.T) {
		t.Parallel()
		called := false
		reranker := &mock.Reranker{
			RerankFn: func(_ context.Context, _ string, urls []string, _ string) ([]string, error) {
				called = true
				return urls, nil
			},
		}

		crawl.BuildFrontier(context.Background(), []focal.Candidate{
			cand("https://a.example/1", 1.0),
			cand("https://b.example/1", 0.5),
		}, crawl.FrontierOptions{Reranker: reranker})

		assert.False(t, called)
	})

	t.Run("returns nil for no candidates", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, crawl.BuildFrontier(context.Background(), nil, crawl.FrontierOptions{}))
	})
}
