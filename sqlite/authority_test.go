package sqlite_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usefocal/focal"
	"github.com/usefocal/focal/sqlite"
)

var _ focal.AuthorityIndex = (*sqlite.AuthorityIndex)(nil)

// recordPageWithLinks stores one crawled page and its outgoing links.
func recordPageWithLinks(t *testing.T, svc *sqlite.LearnedWebService, pageURL string, outlinks ...string) {
	t.Helper()
	ctx := context.Background()

	domainID, err := svc.UpsertDomain(ctx, focal.DomainUpsert{Host: "source.example.com"})
	require.NoError(t, err)

	pageID, err := svc.RecordPage(ctx, &focal.PageRecord{
		URL:      pageURL,
		DomainID: domainID,
		Status:   200,
	})
	require.NoError(t, err)

	for _, link := range outlinks {
		require.NoError(t, svc.RecordLink(ctx, pageID, link, "crawl-1"))
	}
}

func TestAuthorityIndex_Authority(t *testing.T) {
	t.Parallel()

	t.Run("best linked host scores 1, others proportionally less", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		svc, err := sqlite.NewLearnedWebService(db)
		require.NoError(t, err)

		// Five distinct pages link to popular.example.org, one links to
		// niche.example.org.
		for i := 0; i < 5; i++ {
			recordPageWithLinks(t, svc,
				fmt.Sprintf("https://source.example.com/post/%d", i),
				"https://popular.example.org/guide")
		}
		recordPageWithLinks(t, svc,
			"https://source.example.com/post/other",
			"https://niche.example.org/note")

		idx := sqlite.NewAuthorityIndex(db)

		popular := idx.Authority("popular.example.org")
		niche := idx.Authority("niche.example.org")

		assert.InDelta(t, 1.0, popular, 1e-9)
		assert.Greater(t, niche, 0.0)
		assert.Less(t, niche, popular)
	})

	t.Run("unknown host scores zero", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		svc, err := sqlite.NewLearnedWebService(db)
		require.NoError(t, err)

		recordPageWithLinks(t, svc,
			"https://source.example.com/a",
			"https://known.example.org/")

		idx := sqlite.NewAuthorityIndex(db)

		assert.Zero(t, idx.Authority("nobody-links-here.example.net"))
		assert.Zero(t, idx.Authority(""))
	})

	t.Run("aggregates link targets by host", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		svc, err := sqlite.NewLearnedWebService(db)
		require.NoError(t, err)

		// Two pages link to different paths on the same host; a third
		// links once elsewhere. Host aggregation should rank
		// docs.example.org above blog.example.net.
		recordPageWithLinks(t, svc,
			"https://source.example.com/one",
			"https://docs.example.org/install")
		recordPageWithLinks(t, svc,
			"https://source.example.com/two",
			"https://docs.example.org/config")
		recordPageWithLinks(t, svc,
			"https://source.example.com/three",
			"https://blog.example.net/post")

		idx := sqlite.NewAuthorityIndex(db)

		assert.Greater(t, idx.Authority("docs.example.org"), idx.Authority("blog.example.net"))
	})

	t.Run("host lookup is case insensitive", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		svc, err := sqlite.NewLearnedWebService(db)
		require.NoError(t, err)

		recordPageWithLinks(t, svc,
			"https://source.example.com/a",
			"https://Docs.Example.org/page")

		idx := sqlite.NewAuthorityIndex(db)

		assert.Equal(t, idx.Authority("docs.example.org"), idx.Authority("DOCS.EXAMPLE.ORG"))
		assert.Greater(t, idx.Authority("docs.example.org"), 0.0)
	})

	t.Run("empty graph yields zero without error", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		_, err := sqlite.NewLearnedWebService(db)
		require.NoError(t, err)

		idx := sqlite.NewAuthorityIndex(db)

		assert.Zero(t, idx.Authority("anything.example.org"))
	})
}
