package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/usefocal/focal"
	"github.com/usefocal/focal/crawl"
)

// Run executes the export command. Every normalized document becomes one
// markdown file under <dir>/export, laid out by host and URL path. Pages
// whose raw HTML is still on disk are converted to real markdown; the
// rest fall back to their extracted text.
func (c *ExportCmd) Run(deps *Dependencies) error {
	docs, err := deps.Normalized.ReadAll(deps.Ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(deps.Stdout, "Nothing to export: the normalized store is empty.")
		return nil
	}

	html := c.loadRawHTML(deps)

	var bytes, tokens int
	store := deps.ExportDir(c.Dir, "export")
	for _, doc := range docs {
		page := &focal.Page{
			URL:      doc.URL,
			Title:    doc.Title,
			Markdown: c.render(deps, doc, html[doc.URL]),
		}
		if err := store.Save(deps.Ctx, page); err != nil {
			_ = store.Abort()
			return fmt.Errorf("export %s: %w", doc.URL, err)
		}
		bytes += len(page.Markdown)
		if deps.Tokens != nil {
			if n, err := deps.Tokens.CountTokens(deps.Ctx, page.Markdown); err == nil {
				tokens += n
			}
		}
	}
	if err := store.Commit(); err != nil {
		_ = store.Abort()
		return err
	}

	fmt.Fprintf(deps.Stdout, "exported %d documents (%s, %s) to %s\n",
		len(docs), crawl.FormatBytes(bytes), crawl.FormatTokens(tokens), filepath.Join(c.Dir, "export"))
	return nil
}

// loadRawHTML indexes the raw crawl batches by URL, newest batch winning.
// A missing or partial raw store just means more text fallbacks.
func (c *ExportCmd) loadRawHTML(deps *Dependencies) map[string]string {
	html := make(map[string]string)

	entries, err := os.ReadDir(deps.RawDir)
	if err != nil {
		return html
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		recs, err := deps.Raw.ReadBatch(deps.Ctx, strings.TrimSuffix(name, ".jsonl"))
		if err != nil {
			deps.Logger.Warn().Err(err).Str("batch", name).Msg("skipping unreadable raw batch")
			continue
		}
		for _, rec := range recs {
			if rec.HTML != "" {
				html[rec.URL] = rec.HTML
			}
		}
	}
	return html
}

// render produces the page markdown, preferring extracted HTML run
// through the converter.
func (c *ExportCmd) render(deps *Dependencies, doc *focal.Document, rawHTML string) string {
	if rawHTML != "" {
		if res, err := deps.Extractor.Extract(rawHTML); err == nil && res != nil && res.ContentHTML != "" {
			if md, err := deps.Converter.Convert(res.ContentHTML); err == nil && strings.TrimSpace(md) != "" {
				return md
			}
		}
	}
	return doc.Body
}
