// Package goquery implements HTML harvesting: outlinks for the crawl
// frontier, headings for the keyword index, and anchor candidates for
// discovery.
package goquery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/usefocal/focal"
)

// Anchor is a link harvested from an HTML snippet, with its visible
// text for keyword matching during discovery.
type Anchor struct {
	URL  string
	Text string
}

// ExtractOutlinks returns the sanitized absolute URLs of all anchors in
// the page, deduplicated, in document order. Cross-host links are kept:
// focused crawls follow the web wherever the frontier scores it.
func ExtractOutlinks(html, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, focal.Errorf(focal.EINVALID, "invalid base URL: %v", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, focal.Errorf(focal.EINVALID, "failed to parse HTML: %v", err)
	}

	// Anchor-only links resolve to the page itself; drop them.
	self, _ := focal.SanitizeURL(baseURL, nil)

	seen := make(map[string]struct{})
	var out []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists || href == "" || isNonHTTPLink(href) {
			return
		}
		clean, ok := focal.SanitizeURL(href, base)
		if !ok || clean == self {
			return
		}
		if _, dup := seen[clean]; dup {
			return
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	})
	return out, nil
}

// ExtractAnchors returns anchors with their visible text, for matching
// link text against query keywords during discovery. Deduplicated by
// sanitized URL, first occurrence wins.
func ExtractAnchors(html, baseURL string) ([]Anchor, error) {
	var base *url.URL
	if baseURL != "" {
		var err error
		base, err = url.Parse(baseURL)
		if err != nil {
			return nil, focal.Errorf(focal.EINVALID, "invalid base URL: %v", err)
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, focal.Errorf(focal.EINVALID, "failed to parse HTML: %v", err)
	}

	seen := make(map[string]struct{})
	var anchors []Anchor
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists || href == "" || isNonHTTPLink(href) {
			return
		}
		clean, ok := focal.SanitizeURL(href, base)
		if !ok {
			return
		}
		if _, dup := seen[clean]; dup {
			return
		}
		seen[clean] = struct{}{}
		anchors = append(anchors, Anchor{
			URL:  clean,
			Text: strings.TrimSpace(sel.Text()),
		})
	})
	return anchors, nil
}

// ExtractHeadings returns the text of all h1 and h2 elements joined by
// newlines, in document order.
func ExtractHeadings(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", focal.Errorf(focal.EINVALID, "failed to parse HTML: %v", err)
	}

	var parts []string
	doc.Find("h1, h2").Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n"), nil
}

// ExtractTitle returns the contents of the title element, or "" when
// the page has none.
func ExtractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// StripTags returns the page text with markup, scripts and styles removed
// and whitespace collapsed. It is the last-resort body extractor for pages
// the content extractors cannot handle.
func StripTags(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// isNonHTTPLink checks if a href is a non-HTTP link that should be skipped.
func isNonHTTPLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:")
}
