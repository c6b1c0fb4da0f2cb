package focal

import (
	"net"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
)

// RawRecord is one line of crawler output as persisted to the raw JSONL
// store before normalization.
type RawRecord struct {
	URL         string    `json:"url"`
	Status      int       `json:"status"`
	Title       string    `json:"title,omitempty"`
	HTML        string    `json:"html"`
	FetchedAt   time.Time `json:"fetched_at"`
	ContentType string    `json:"content_type,omitempty"`
	Outlinks    []string  `json:"outlinks,omitempty"`
}

// Document represents a normalized page ready for indexing.
type Document struct {
	URL          string    `json:"url"`
	CanonicalURL string    `json:"canonical_url,omitempty"`
	Title        string    `json:"title"`
	H1H2         string    `json:"h1h2"`
	Body         string    `json:"body"`
	Lang         string    `json:"lang"`
	FetchedAt    time.Time `json:"fetched_at,omitempty"`
	Outlinks     []string  `json:"outlinks,omitempty"`
	StatusCode   int       `json:"status_code,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
}

// Validate returns an error if the document cannot be indexed.
func (d *Document) Validate() error {
	if d.URL == "" {
		return Errorf(EINVALID, "document URL required")
	}
	if d.Body == "" {
		return Errorf(EINVALID, "document body required")
	}
	return nil
}

// Domain returns the lowercased host of the document URL, or "" if the URL
// does not parse.
func (d *Document) Domain() string {
	u, err := url.Parse(d.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// CanonicalizeURL returns the canonical form of a URL: lowercased scheme and
// host, default ports stripped, dot-segments resolved, query keys sorted,
// fragment dropped, and no trailing slash except at the root.
// Canonicalization is idempotent.
func CanonicalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", Errorf(EINVALID, "invalid URL %q", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", Errorf(EINVALID, "unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", Errorf(EINVALID, "URL %q has no host", raw)
	}

	host := strings.ToLower(u.Host)
	if h, p, splitErr := net.SplitHostPort(host); splitErr == nil {
		if (u.Scheme == "http" && p == "80") || (u.Scheme == "https" && p == "443") {
			host = h
		}
	}
	u.Host = host

	// Resolve dot-segments and drop trailing slashes outside the root.
	p := path.Clean(u.Path)
	if p == "." || p == "" {
		p = "/"
	}
	u.Path = p
	u.RawPath = ""

	if u.RawQuery != "" {
		u.RawQuery = sortedQuery(u.RawQuery)
	}
	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

// sortedQuery re-encodes a query string with its keys in sorted order.
func sortedQuery(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	return values.Encode()
}

// SanitizeURL prepares a discovered URL for use as a crawl candidate.
// Relative URLs are resolved against base when given. Scheme-less URLs are
// forced to https. Non-http(s) schemes (javascript:, mailto:, data:) are
// rejected. The trailing slash is stripped except at the root.
// Returns the sanitized URL and whether it is usable.
func SanitizeURL(raw string, base *url.URL) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "data:") {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if base != nil && !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" {
		if u.Host == "" {
			// "example.com/path" parses with an empty host; reparse with
			// an explicit scheme.
			u, err = url.Parse("https://" + raw)
			if err != nil {
				return "", false
			}
		} else {
			u.Scheme = "https"
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), true
}

// Tokenize splits text into lowercased alphanumeric tokens.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !isAlnum(r)
	})
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// KeywordSet returns the deduplicated, sorted token set of a query with
// stopwords removed. Falls back to the raw token set when everything was a
// stopword.
func KeywordSet(query string) []string {
	tokens := Tokenize(query)
	seen := make(map[string]struct{}, len(tokens))
	var keywords []string
	for _, tok := range tokens {
		if _, ok := stopwords[tok]; ok {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	if len(keywords) == 0 {
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			keywords = append(keywords, tok)
		}
	}
	sort.Strings(keywords)
	return keywords
}

var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "can": {}, "do": {}, "does": {}, "for": {}, "from": {},
	"how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "with": {},
}
