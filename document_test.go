package focal_test

import (
	"net/url"
	"testing"

	"github.com/usefocal/focal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Docs", "https://example.com/Docs"},
		{"strips default https port", "https://example.com:443/a", "https://example.com/a"},
		{"strips default http port", "http://example.com:80/a", "http://example.com/a"},
		{"keeps custom port", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"resolves dot segments", "https://example.com/a/./b/../c", "https://example.com/a/c"},
		{"drops fragment", "https://example.com/a#section", "https://example.com/a"},
		{"sorts query keys", "https://example.com/a?z=1&a=2", "https://example.com/a?a=2&z=1"},
		{"strips trailing slash", "https://example.com/a/", "https://example.com/a"},
		{"keeps root slash", "https://example.com/", "https://example.com/"},
		{"adds root slash", "https://example.com", "https://example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := focal.CanonicalizeURL(tt.in)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalizeURL_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTPS://Example.COM:443/A/./B/../c/?z=1&a=2#frag",
		"http://example.com:80/",
		"https://example.com/docs/guide/",
	}

	for _, in := range inputs {
		once, err := focal.CanonicalizeURL(in)
		require.NoError(t, err)

		twice, err := focal.CanonicalizeURL(once)
		require.NoError(t, err)

		assert.Equal(t, once, twice)
	}
}

func TestCanonicalizeURL_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"no host", "https://"},
		{"ftp scheme", "ftp://example.com/file"},
		{"javascript scheme", "javascript:void(0)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := focal.CanonicalizeURL(tt.in)

			assert.Equal(t, focal.EINVALID, focal.ErrorCode(err))
		})
	}
}

func TestSanitizeURL(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.com/docs/")
	require.NoError(t, err)

	tests := []struct {
		name   string
		in     string
		base   *url.URL
		want   string
		wantOK bool
	}{
		{"absolute passes", "https://example.com/a", nil, "https://example.com/a", true},
		{"javascript rejected", "javascript:alert(1)", nil, "", false},
		{"mailto rejected", "mailto:a@example.com", nil, "", false},
		{"relative resolves", "guide/intro", base, "https://example.com/docs/guide/intro", true},
		{"schemeless forced https", "example.com/path", nil, "https://example.com/path", true},
		{"trailing slash stripped", "https://example.com/a/", nil, "https://example.com/a", true},
		{"root slash kept", "https://example.com/", nil, "https://example.com/", true},
		{"fragment dropped", "https://example.com/a#x", nil, "https://example.com/a", true},
		{"empty rejected", "   ", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := focal.SanitizeURL(tt.in, tt.base)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocumentValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		doc := &focal.Document{URL: "https://example.com/a", Body: "text"}
		assert.NoError(t, doc.Validate())
	})

	t.Run("missing URL", func(t *testing.T) {
		t.Parallel()

		doc := &focal.Document{Body: "text"}
		assert.Equal(t, focal.EINVALID, focal.ErrorCode(doc.Validate()))
	})

	t.Run("missing body", func(t *testing.T) {
		t.Parallel()

		doc := &focal.Document{URL: "https://example.com/a"}
		assert.Equal(t, focal.EINVALID, focal.ErrorCode(doc.Validate()))
	})
}

func TestDocumentDomain(t *testing.T) {
	t.Parallel()

	doc := &focal.Document{URL: "https://Docs.Example.com:8443/guide"}
	assert.Equal(t, "docs.example.com", doc.Domain())
}

func TestKeywordSet(t *testing.T) {
	t.Parallel()

	t.Run("drops stopwords and duplicates", func(t *testing.T) {
		t.Parallel()

		got := focal.KeywordSet("How to install the Python packaging python tools")
		assert.Equal(t, []string{"install", "packaging", "python", "tools"}, got)
	})

	t.Run("falls back to raw tokens", func(t *testing.T) {
		t.Parallel()

		got := focal.KeywordSet("what is the")
		assert.Equal(t, []string{"is", "the", "what"}, got)
	})

	t.Run("empty query", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, focal.KeywordSet("  "))
	})
}
