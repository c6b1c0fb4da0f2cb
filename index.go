package focal

import "context"

// IndexStats summarizes one incremental indexing batch.
type IndexStats struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Deduped int `json:"deduped"`
}

// Add accumulates stats from another batch.
func (s *IndexStats) Add(other IndexStats) {
	s.Added += other.Added
	s.Skipped += other.Skipped
	s.Deduped += other.Deduped
}

// KeywordHit is a single keyword-index match.
type KeywordHit struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Domain    string   `json:"domain,omitempty"`
	Fragments []string `json:"fragments,omitempty"`
	Score     float64  `json:"score"`
}

// KeywordSearchOptions configures a keyword search.
type KeywordSearchOptions struct {
	// Site restricts results to an exact domain when non-empty.
	Site string

	// InTitle restricts matching to the title field.
	InTitle bool

	// Page is the zero-based result page.
	Page int

	// PerPage is the page size. Implementations apply a default when <= 0.
	PerPage int
}

// KeywordIndex is an inverted index over normalized documents keyed by URL.
type KeywordIndex interface {
	// Upsert stages a document write. The write becomes visible after
	// Commit.
	Upsert(ctx context.Context, doc *Document) error

	// Commit executes all staged writes.
	Commit(ctx context.Context) error

	// Search runs a query and returns hits plus the total match count.
	Search(ctx context.Context, query string, opts KeywordSearchOptions) ([]KeywordHit, uint64, error)

	// DocCount returns the number of committed documents.
	DocCount() (uint64, error)

	// Close releases index resources.
	Close() error
}

// IndexService applies batches of normalized documents to the keyword index
// with ledger and near-duplicate guards.
type IndexService interface {
	// IncrementalIndex indexes a batch, skipping unchanged documents and
	// near-duplicates, and persists the ledger and SimHash index on
	// success.
	IncrementalIndex(ctx context.Context, docs []*Document) (IndexStats, error)

	// LastIndexTime returns the epoch seconds of the last committed batch,
	// or zero when nothing has been indexed.
	LastIndexTime() int64
}
