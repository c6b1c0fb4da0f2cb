// Package bleve implements the keyword index on blevesearch/bleve with
// stemming analysis, field boosts and HTML-highlighted fragments.
package bleve

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/rs/zerolog"
	"github.com/usefocal/focal"
)

// Field boosts for multifield queries.
const (
	titleBoost = 4.0
	h1h2Boost  = 2.0
	bodyBoost  = 1.0
)

const defaultPerPage = 10

// requiredFields is the canonical schema. An existing index missing any of
// these fields is rebuilt empty; its data is recoverable by reindexing from
// the normalized store.
var requiredFields = []string{"domain", "lang", "title", "h1h2", "body"}

// Ensure Index implements focal.KeywordIndex at compile time.
var _ focal.KeywordIndex = (*Index)(nil)

// Index is a bleve-backed keyword index keyed by URL. Writes are staged on
// a batch and become visible on Commit; readers search committed snapshots.
type Index struct {
	mu    sync.Mutex
	idx   bleve.Index
	batch *bleve.Batch
}

// Open opens the index directory, creating it when absent. An unreadable
// index or one missing required fields is rebuilt empty.
func Open(dir string, logger zerolog.Logger) (*Index, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return create(dir)
	}

	idx, err := bleve.Open(dir)
	if err != nil {
		logger.Error().Err(err).Str("dir", dir).Msg("keyword index unreadable, rebuilding empty")
		if err := os.RemoveAll(dir); err != nil {
			return nil, err
		}
		return create(dir)
	}

	if !hasRequiredFields(idx.Mapping()) {
		logger.Error().Str("dir", dir).Msg("keyword index schema missing required fields, rebuilding empty")
		if err := idx.Close(); err != nil {
			return nil, err
		}
		if err := os.RemoveAll(dir); err != nil {
			return nil, err
		}
		return create(dir)
	}

	return newIndex(idx), nil
}

func create(dir string) (*Index, error) {
	idx, err := bleve.New(dir, buildIndexMapping())
	if err != nil {
		return nil, err
	}
	return newIndex(idx), nil
}

func newIndex(idx bleve.Index) *Index {
	return &Index{idx: idx, batch: idx.NewBatch()}
}

// buildIndexMapping returns the canonical schema: english-analyzed text
// fields with boost-ready names, and exact-match keyword fields for domain
// and lang.
func buildIndexMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = en.AnalyzerName
	title.Store = true
	doc.AddFieldMappingsAt("title", title)

	h1h2 := bleve.NewTextFieldMapping()
	h1h2.Analyzer = en.AnalyzerName
	h1h2.Store = true
	doc.AddFieldMappingsAt("h1h2", h1h2)

	body := bleve.NewTextFieldMapping()
	body.Analyzer = en.AnalyzerName
	body.Store = true
	body.IncludeTermVectors = true
	doc.AddFieldMappingsAt("body", body)

	domain := bleve.NewKeywordFieldMapping()
	domain.Store = true
	doc.AddFieldMappingsAt("domain", domain)

	lang := bleve.NewKeywordFieldMapping()
	lang.Store = true
	doc.AddFieldMappingsAt("lang", lang)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = en.AnalyzerName
	return im
}

func hasRequiredFields(m mapping.IndexMapping) bool {
	im, ok := m.(*mapping.IndexMappingImpl)
	if !ok || im.DefaultMapping == nil {
		return false
	}
	for _, field := range requiredFields {
		if _, ok := im.DefaultMapping.Properties[field]; !ok {
			return false
		}
	}
	return true
}

// Upsert stages a document write keyed by its URL.
func (s *Index) Upsert(ctx context.Context, doc *focal.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch.Index(doc.URL, map[string]any{
		"domain": doc.Domain(),
		"lang":   doc.Lang,
		"title":  doc.Title,
		"h1h2":   doc.H1H2,
		"body":   doc.Body,
	})
}

// Commit executes staged writes. A no-op when nothing is staged.
func (s *Index) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch.Size() == 0 {
		return nil
	}
	if err := s.idx.Batch(s.batch); err != nil {
		return err
	}
	s.batch = s.idx.NewBatch()
	return nil
}

// Search runs a multifield query with field boosts and returns hits with
// HTML-marked body fragments plus the total match count.
func (s *Index) Search(ctx context.Context, qstr string, opts focal.KeywordSearchOptions) ([]focal.KeywordHit, uint64, error) {
	qstr = strings.TrimSpace(qstr)
	if qstr == "" {
		return nil, 0, focal.Errorf(focal.EINVALID, "search query required")
	}

	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	page := opts.Page
	if page < 0 {
		page = 0
	}

	q := buildQuery(qstr, opts.InTitle)
	if opts.Site != "" {
		tq := bleve.NewTermQuery(strings.ToLower(opts.Site))
		tq.SetField("domain")
		q = bleve.NewConjunctionQuery(q, tq)
	}

	req := bleve.NewSearchRequestOptions(q, perPage, page*perPage, false)
	req.Fields = []string{"title", "domain"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("body")

	res, err := s.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, 0, err
	}

	hits := make([]focal.KeywordHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		kh := focal.KeywordHit{URL: hit.ID, Score: hit.Score}
		if title, ok := hit.Fields["title"].(string); ok {
			kh.Title = title
		}
		if domain, ok := hit.Fields["domain"].(string); ok {
			kh.Domain = domain
		}
		kh.Fragments = hit.Fragments["body"]
		hits = append(hits, kh)
	}
	return hits, res.Total, nil
}

// buildQuery assembles the boosted multifield disjunction, honoring quoted
// phrases and the in-title restriction.
func buildQuery(qstr string, inTitle bool) query.Query {
	phrase := len(qstr) > 1 && strings.HasPrefix(qstr, `"`) && strings.HasSuffix(qstr, `"`)
	if phrase {
		qstr = strings.Trim(qstr, `"`)
	}

	if inTitle {
		return fieldQuery(qstr, "title", titleBoost, phrase)
	}

	return bleve.NewDisjunctionQuery(
		fieldQuery(qstr, "title", titleBoost, phrase),
		fieldQuery(qstr, "h1h2", h1h2Boost, phrase),
		fieldQuery(qstr, "body", bodyBoost, phrase),
	)
}

func fieldQuery(qstr, field string, boost float64, phrase bool) query.Query {
	if phrase {
		pq := bleve.NewMatchPhraseQuery(qstr)
		pq.SetField(field)
		pq.SetBoost(boost)
		return pq
	}
	mq := bleve.NewMatchQuery(qstr)
	mq.SetField(field)
	mq.SetBoost(boost)
	return mq
}

// DocCount returns the number of committed documents.
func (s *Index) DocCount() (uint64, error) {
	return s.idx.DocCount()
}

// Close releases the index.
func (s *Index) Close() error {
	return s.idx.Close()
}
