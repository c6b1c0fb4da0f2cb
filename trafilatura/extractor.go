// Package trafilatura extracts main content from crawled pages. It is
// the first extractor in the normalization chain; readability picks up
// the pages it cannot handle.
package trafilatura

import (
	"bytes"
	"strings"

	"github.com/markusmobius/go-trafilatura"
	"github.com/usefocal/focal"
	"golang.org/x/net/html"
)

var _ focal.Extractor = (*Extractor)(nil)

// Extractor pulls article content out of raw HTML with go-trafilatura.
type Extractor struct {
	opts trafilatura.Options
}

// NewExtractor creates an Extractor tuned for crawled web pages:
// comment sections are dropped and repeated boilerplate fragments are
// deduplicated so they do not pollute the keyword index.
func NewExtractor() *Extractor {
	return &Extractor{
		opts: trafilatura.Options{
			EnableFallback:  true,
			ExcludeComments: true,
			Deduplicate:     true,
		},
	}
}

// Extract returns the page's main content and metadata title.
func (e *Extractor) Extract(rawHTML string) (*focal.ExtractResult, error) {
	if rawHTML == "" {
		return nil, focal.Errorf(focal.EINVALID, "empty HTML input")
	}

	result, err := trafilatura.Extract(strings.NewReader(rawHTML), e.opts)
	if err != nil {
		return nil, err
	}

	var contentHTML string
	if result.ContentNode != nil {
		var buf bytes.Buffer
		if err := html.Render(&buf, result.ContentNode); err != nil {
			return nil, err
		}
		contentHTML = buf.String()
	}

	return &focal.ExtractResult{
		Title:       result.Metadata.Title,
		ContentHTML: contentHTML,
		ContentText: result.ContentText,
	}, nil
}
