package gofeed_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usefocal/focal"
	gf "github.com/usefocal/focal/gofeed"
)

// Ensure Fetcher implements focal.FeedFetcher at compile time.
var _ focal.FeedFetcher = (*gf.Fetcher)(nil)

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Example Blog</title>
<link>https://example.com</link>
<item>
<title>First Post</title>
<link>https://example.com/posts/first/</link>
<pubDate>Mon, 06 Jan 2025 10:00:00 +0000</pubDate>
</item>
<item>
<title>Second Post</title>
<link>https://example.com/posts/second</link>
</item>
</channel>
</rss>`

func TestFetcher_Entries(t *testing.T) {
	t.Parallel()

	t.Run("parses rss items", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "focal-test", r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "application/rss+xml")
			fmt.Fprint(w, rssBody)
		}))
		defer srv.Close()

		f := gf.NewFetcher("focal-test")
		entries, err := f.Entries(context.Background(), srv.URL)
		require.NoError(t, err)

		require.Len(t, entries, 2)
		assert.Equal(t, "https://example.com/posts/first", entries[0].URL)
		assert.Equal(t, "First Post", entries[0].Title)
		assert.False(t, entries[0].Published.IsZero())
		assert.Equal(t, "https://example.com/posts/second", entries[1].URL)
		assert.True(t, entries[1].Published.IsZero())
	})

	t.Run("http error yields EUNAVAILABLE", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		f := gf.NewFetcher("focal-test")
		_, err := f.Entries(context.Background(), srv.URL)

		require.Error(t, err)
		assert.Equal(t, focal.EUNAVAILABLE, focal.ErrorCode(err))
	})

	t.Run("non-feed body yields EINVALID", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "<html><body>not a feed</body></html>")
		}))
		defer srv.Close()

		f := gf.NewFetcher("focal-test")
		_, err := f.Entries(context.Background(), srv.URL)

		require.Error(t, err)
		assert.Equal(t, focal.EINVALID, focal.ErrorCode(err))
	})
}
