package readability

import (
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/usefocal/focal"
)

// Ensure Extractor implements focal.Extractor at compile time.
var _ focal.Extractor = (*Extractor)(nil)

// Extractor wraps go-readability to extract main content from HTML.
// It is the fallback when trafilatura yields nothing useful.
type Extractor struct{}

// NewExtractor creates a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract processes raw HTML and returns the main content.
func (e *Extractor) Extract(rawHTML string) (*focal.ExtractResult, error) {
	if rawHTML == "" {
		return nil, focal.Errorf(focal.EINVALID, "empty HTML input")
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), nil)
	if err != nil {
		return nil, err
	}

	return &focal.ExtractResult{
		Title:       article.Title,
		ContentHTML: article.Content,
		ContentText: article.TextContent,
	}, nil
}
