// Package htmltomarkdown renders extracted page content as markdown for
// the export tree.
package htmltomarkdown

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/usefocal/focal"
)

var _ focal.Converter = (*Converter)(nil)

// Converter turns clean content HTML into commonmark, tables included.
// A Converter is safe for concurrent use and meant to be shared.
type Converter struct {
	conv *converter.Converter
}

// NewConverter creates a Converter.
func NewConverter() *Converter {
	return &Converter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Convert renders HTML as markdown. The input should already be
// boilerplate-free, typically an Extractor's ContentHTML.
func (c *Converter) Convert(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", focal.Errorf(focal.EINVALID, "empty HTML input")
	}

	return c.conv.ConvertString(html)
}
