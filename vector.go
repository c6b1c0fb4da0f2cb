package focal

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Chunk is a contiguous span of document text sized for embedding.
// Start and End are character offsets into a left-concatenation of the
// preceding chunks; overlapping chunkers may produce spans that do not
// partition the input.
type Chunk struct {
	Text       string            `json:"text"`
	Start      int               `json:"start"`
	End        int               `json:"end"`
	TokenCount int               `json:"token_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Chunker splits text into embedding-sized chunks.
type Chunker interface {
	Chunk(text string) ([]Chunk, error)
}

// UpsertRequest describes a document to write into the vector store.
type UpsertRequest struct {
	Text     string         `json:"text"`
	URL      string         `json:"url,omitempty"`
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"meta,omitempty"`

	// JobID tags pending-queue rows with the focused-crawl job that
	// produced them, when applicable.
	JobID string `json:"-"`
}

// UpsertResult reports the outcome of a vector upsert.
type UpsertResult struct {
	DocID       string `json:"doc_id"`
	Chunks      int    `json:"chunks"`
	Dims        int    `json:"dims"`
	Skipped     bool   `json:"skipped,omitempty"`
	DuplicateOf string `json:"duplicate_of,omitempty"`
	Queued      bool   `json:"queued,omitempty"`
}

// VectorHit is a single vector-store match.
type VectorHit struct {
	URL   string  `json:"url"`
	Title string  `json:"title"`
	Chunk string  `json:"chunk"`
	Score float32 `json:"score"`
}

// VectorStore persists chunked document embeddings and answers cosine
// similarity queries.
type VectorStore interface {
	// UpsertDocument chunks, embeds and stores a document. When the
	// embedder is unavailable the document is parked in the pending
	// queue and the result has Queued set.
	UpsertDocument(ctx context.Context, req UpsertRequest) (*UpsertResult, error)

	// Search returns up to k hits sorted by descending cosine similarity.
	// Hits below the store's similarity threshold are excluded. Filters
	// are metadata equality; empty values are ignored.
	Search(ctx context.Context, query string, k int, filters map[string]string) ([]VectorHit, error)

	// IndexFromPending embeds and stores a previously parked document.
	// Returns an EmbedderUnavailableError when the embedder still cannot
	// serve.
	IndexFromPending(ctx context.Context, rec *PendingVector) error
}

// DocID derives the stable vector-store document id: a hash of the
// canonical URL, or of the text when no URL is known.
func DocID(url, text string) string {
	src := url
	if src == "" {
		src = text
	}
	return "doc-" + strconv.FormatUint(xxhash.Sum64String(src), 16)
}
