package crawl

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/usefocal/focal"
	"github.com/usefocal/focal/goquery"
)

// Normalizer turns raw crawl records into indexable documents. Records
// without a URL or with an error status are dropped, as are pages whose
// body stays empty after every extraction attempt.
type Normalizer struct {
	extractors []focal.Extractor
	language   focal.LanguageDetector
	logger     zerolog.Logger
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithNormalizerLogger sets the logger.
func WithNormalizerLogger(logger zerolog.Logger) NormalizerOption {
	return func(n *Normalizer) { n.logger = logger }
}

// NewNormalizer creates a normalizer with the given extractor chain and
// language detector. Extractors are tried in order; a tag-strip pass
// covers pages none of them can handle. A nil detector labels every
// document "unknown".
func NewNormalizer(extractors []focal.Extractor, language focal.LanguageDetector, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		extractors: extractors,
		language:   language,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NormalizeBatch normalizes records in order and deduplicates the batch
// by canonical URL, the last fetch of a URL winning.
func (n *Normalizer) NormalizeBatch(ctx context.Context, recs []*focal.RawRecord) ([]*focal.Document, error) {
	byKey := make(map[string]int)
	var docs []*focal.Document
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc := n.normalize(rec)
		if doc == nil {
			continue
		}
		key := doc.CanonicalURL
		if key == "" {
			key = doc.URL
		}
		if i, ok := byKey[key]; ok {
			docs[i] = doc
			continue
		}
		byKey[key] = len(docs)
		docs = append(docs, doc)
	}
	return docs, nil
}

// normalize converts one record, or returns nil when it should be
// dropped.
func (n *Normalizer) normalize(rec *focal.RawRecord) *focal.Document {
	if rec == nil || rec.URL == "" {
		return nil
	}
	if rec.Status >= 400 {
		return nil
	}

	title, body := n.extractBody(rec.HTML)
	if body == "" {
		n.logger.Debug().Str("url", rec.URL).Msg("dropping record with empty body")
		return nil
	}
	if rec.Title != "" {
		title = rec.Title
	}
	if title == "" {
		title = goquery.ExtractTitle(rec.HTML)
	}

	h1h2, _ := goquery.ExtractHeadings(rec.HTML)

	lang := focal.LangUnknown
	if n.language != nil {
		lang = n.language.Detect(body)
	}

	canonical := ""
	if c, err := focal.CanonicalizeURL(rec.URL); err == nil {
		canonical = c
	}

	return &focal.Document{
		URL:          rec.URL,
		CanonicalURL: canonical,
		Title:        title,
		H1H2:         h1h2,
		Body:         body,
		Lang:         lang,
		FetchedAt:    rec.FetchedAt,
		Outlinks:     rec.Outlinks,
		StatusCode:   rec.Status,
		ContentType:  rec.ContentType,
	}
}

func (n *Normalizer) extractBody(html string) (title, body string) {
	for _, extractor := range n.extractors {
		result, err := extractor.Extract(html)
		if err != nil || result == nil {
			continue
		}
		if text := strings.TrimSpace(result.ContentText); text != "" {
			return result.Title, text
		}
		if title == "" {
			title = result.Title
		}
	}
	return title, goquery.StripTags(html)
}
