package bleve

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/usefocal/focal"
)

// Ensure Indexer implements focal.IndexService at compile time.
var _ focal.IndexService = (*Indexer)(nil)

// Indexer applies batches of normalized documents to a keyword index with
// a content-hash ledger guarding unchanged documents and a SimHash index
// guarding near-duplicates. The ledger and SimHash index are only
// persisted after the index commit succeeds, so a failed batch changes
// nothing durable.
type Indexer struct {
	index     focal.KeywordIndex
	ledger    focal.Ledger
	simhashes focal.SimHashIndex
	lastIndex focal.LastIndexStore
	logger    zerolog.Logger
}

// NewIndexer creates an incremental indexer over its stores.
func NewIndexer(index focal.KeywordIndex, ledger focal.Ledger, simhashes focal.SimHashIndex, lastIndex focal.LastIndexStore, logger zerolog.Logger) *Indexer {
	return &Indexer{
		index:     index,
		ledger:    ledger,
		simhashes: simhashes,
		lastIndex: lastIndex,
		logger:    logger,
	}
}

// IncrementalIndex indexes a batch of documents. A document whose content
// hash matches its ledger entry is skipped; a document within Hamming
// distance 3 of another URL's signature is counted as deduped and gets a
// ledger entry (so it is not refetched) but no index write and no SimHash
// entry of its own.
func (s *Indexer) IncrementalIndex(ctx context.Context, docs []*focal.Document) (focal.IndexStats, error) {
	var stats focal.IndexStats

	for _, doc := range docs {
		if doc.URL == "" || doc.Body == "" {
			stats.Skipped++
			continue
		}

		hash := focal.ContentHash(doc.Title, doc.H1H2, doc.Body)
		if prev, ok := s.ledger.Get(doc.URL); ok && prev == hash {
			stats.Skipped++
			continue
		}

		sig := focal.SimHash64(doc.Body)
		if dup, ok := s.simhashes.Nearest(sig, focal.SimHashThreshold); ok && dup != doc.URL {
			s.ledger.Set(doc.URL, hash)
			stats.Deduped++
			s.logger.Debug().Str("url", doc.URL).Str("duplicate_of", dup).Msg("near-duplicate skipped")
			continue
		}

		if err := s.index.Upsert(ctx, doc); err != nil {
			return stats, err
		}
		s.ledger.Set(doc.URL, hash)
		s.simhashes.Update(doc.URL, sig)
		stats.Added++
	}

	if err := s.index.Commit(ctx); err != nil {
		return stats, err
	}
	if err := s.ledger.Save(); err != nil {
		return stats, err
	}
	if err := s.simhashes.Save(); err != nil {
		return stats, err
	}
	if stats.Added > 0 {
		if err := s.lastIndex.Write(time.Now().Unix()); err != nil {
			s.logger.Warn().Err(err).Msg("writing last-index-time failed")
		}
	}

	s.logger.Info().Int("added", stats.Added).Int("skipped", stats.Skipped).
		Int("deduped", stats.Deduped).Msg("incremental index batch committed")
	return stats, nil
}

// LastIndexTime returns the epoch seconds of the last committed batch, or
// zero when nothing has been indexed. Stale reads are acceptable here.
func (s *Indexer) LastIndexTime() int64 {
	n, err := s.lastIndex.Read()
	if err != nil {
		s.logger.Warn().Err(err).Msg("reading last-index-time failed")
		return 0
	}
	return n
}
