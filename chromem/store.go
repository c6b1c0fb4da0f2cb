// Package chromem implements the vector store on philippgille/chromem-go:
// chunk-level embeddings in a persistent collection, upserts guarded by a
// content-hash ledger and a SimHash near-duplicate index, and a durable
// pending queue for embedder outages.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"
	"github.com/usefocal/focal"
)

// collectionName is the single collection all document chunks live in.
const collectionName = "documents"

// defaultThreshold is the minimum cosine similarity a search hit must
// reach when the configuration does not set one.
const defaultThreshold = 0.25

// searchOverfetch widens chunk queries so deduplication by URL can still
// fill k distinct results.
const searchOverfetch = 4

// Ensure Store implements focal.VectorStore at compile time.
var _ focal.VectorStore = (*Store)(nil)

// Config wires the store's collaborators.
type Config struct {
	// Dir is the persistence directory for the chromem database.
	Dir string

	Embedder focal.Embedder
	Chunker  focal.Chunker

	// Pending receives documents whose embedding must wait for the
	// embedder to come back.
	Pending focal.PendingQueue

	// Ledger maps doc id to content hash; unchanged documents short-circuit.
	Ledger focal.Ledger

	// SimHashes maps doc id to SimHash signature; near-duplicates of a
	// different doc are skipped.
	SimHashes focal.SimHashIndex

	// Threshold is the minimum cosine similarity returned by Search.
	// Zero selects the default.
	Threshold float32

	Logger zerolog.Logger
}

// Store persists chunked document embeddings in a chromem collection.
// Upsert, search and delete are serialized behind a per-store lock, so
// readers observe a document's chunks before or after a replacement,
// never a partial state.
type Store struct {
	mu  sync.RWMutex
	col *chromem.Collection

	embedder  focal.Embedder
	chunker   focal.Chunker
	pending   focal.PendingQueue
	ledger    focal.Ledger
	simhashes focal.SimHashIndex
	threshold float32
	logger    zerolog.Logger
}

// Open opens the persistent database under cfg.Dir, rebuilding it empty
// when the stored data is unreadable. Vector data is recoverable by
// reindexing from the normalized store.
func Open(cfg Config) (*Store, error) {
	switch {
	case cfg.Dir == "":
		return nil, focal.Errorf(focal.EINVALID, "vector store directory required")
	case cfg.Embedder == nil:
		return nil, focal.Errorf(focal.EINVALID, "vector store requires an embedder")
	case cfg.Chunker == nil:
		return nil, focal.Errorf(focal.EINVALID, "vector store requires a chunker")
	case cfg.Pending == nil:
		return nil, focal.Errorf(focal.EINVALID, "vector store requires a pending queue")
	case cfg.Ledger == nil || cfg.SimHashes == nil:
		return nil, focal.Errorf(focal.EINVALID, "vector store requires fingerprint stores")
	}

	db, err := chromem.NewPersistentDB(cfg.Dir, false)
	if err != nil {
		cfg.Logger.Error().Err(err).Str("dir", cfg.Dir).Msg("vector database unreadable, rebuilding empty")
		if err := os.RemoveAll(cfg.Dir); err != nil {
			return nil, err
		}
		db, err = chromem.NewPersistentDB(cfg.Dir, false)
		if err != nil {
			return nil, err
		}
	}

	// Chunks always arrive with precomputed vectors; chromem must never
	// embed on its own.
	col, err := db.GetOrCreateCollection(collectionName, nil, rejectEmbedding)
	if err != nil {
		return nil, err
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}

	return &Store{
		col:       col,
		embedder:  cfg.Embedder,
		chunker:   cfg.Chunker,
		pending:   cfg.Pending,
		ledger:    cfg.Ledger,
		simhashes: cfg.SimHashes,
		threshold: threshold,
		logger:    cfg.Logger,
	}, nil
}

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, focal.Errorf(focal.EINTERNAL, "collection asked to embed; vectors are computed upstream")
}

// UpsertDocument chunks, embeds and stores a document. Unchanged content
// and near-duplicates of another document are skipped without embedding.
// When the embedder is unavailable the prepared chunks are parked in the
// pending queue and the result has Queued set.
func (s *Store) UpsertDocument(ctx context.Context, req focal.UpsertRequest) (*focal.UpsertResult, error) {
	text := cleanText(req.Text)
	if text == "" {
		return nil, focal.Errorf(focal.EINVALID, "upsert requires non-empty text")
	}

	url := strings.TrimSpace(req.URL)
	if url != "" {
		sanitized, ok := focal.SanitizeURL(url, nil)
		if !ok {
			return nil, focal.Errorf(focal.EINVALID, "invalid document URL %q", req.URL)
		}
		url = sanitized
	}

	docID := focal.DocID(url, text)
	contentHash := focal.HashText(text)
	sig := focal.SimHash64(text)

	if near, ok := s.simhashes.Nearest(sig, focal.SimHashThreshold); ok && near != docID {
		return &focal.UpsertResult{DocID: docID, Skipped: true, DuplicateOf: near}, nil
	}
	if prev, ok := s.ledger.Get(docID); ok && prev == contentHash {
		return &focal.UpsertResult{DocID: docID, Skipped: true}, nil
	}

	chunks, err := s.chunker.Chunk(text)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		if err := s.commitFingerprint(docID, contentHash, sig); err != nil {
			return nil, err
		}
		return &focal.UpsertResult{DocID: docID}, nil
	}

	meta := sanitizeMetadata(req.Metadata)
	title := resolveTitle(req.Title, url)

	vectors, err := s.embedder.Embed(ctx, chunkTexts(chunks))
	if err != nil {
		if !focal.IsEmbedderUnavailable(err) {
			return nil, err
		}
		rec := &focal.PendingVector{
			DocID:         docID,
			JobID:         req.JobID,
			URL:           url,
			Title:         req.Title,
			ResolvedTitle: title,
			ContentHash:   contentHash,
			SimHash:       sig,
			Metadata:      meta,
			Chunks:        chunks,
		}
		if qerr := s.pending.Enqueue(ctx, rec); qerr != nil {
			return nil, qerr
		}
		s.logger.Warn().
			Str("doc_id", docID).
			Int("chunks", len(chunks)).
			Msg("embedder unavailable, document queued for later indexing")
		return &focal.UpsertResult{DocID: docID, Queued: true}, nil
	}
	if len(vectors) != len(chunks) {
		return nil, focal.Errorf(focal.EINTERNAL, "embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	docs := chunkDocuments(docID, url, title, meta, chunks, vectors)
	if err := s.replaceChunks(ctx, docID, docs, contentHash, sig); err != nil {
		return nil, err
	}
	return &focal.UpsertResult{DocID: docID, Chunks: len(chunks), Dims: len(vectors[0])}, nil
}

// Search embeds the query and returns up to k hits sorted by descending
// cosine similarity, one per URL, with hits below the similarity
// threshold excluded.
func (s *Store) Search(ctx context.Context, query string, k int, filters map[string]string) ([]focal.VectorHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, focal.Errorf(focal.EINVALID, "search query required")
	}
	if k <= 0 {
		return nil, focal.Errorf(focal.EINVALID, "search requires k > 0")
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, focal.Errorf(focal.EINTERNAL, "embedder returned no vector for query")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := k * searchOverfetch
	if count := s.col.Count(); n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := s.col.QueryEmbedding(ctx, vectors[0], n, searchFilters(filters), nil)
	if err != nil {
		return nil, focal.Errorf(focal.EINTERNAL, "vector query: %v", err)
	}

	seen := make(map[string]struct{}, k)
	hits := make([]focal.VectorHit, 0, k)
	for _, r := range results {
		if r.Similarity < s.threshold {
			continue
		}
		key := r.Metadata["url"]
		if key == "" {
			key = r.Metadata["doc_id"]
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		hits = append(hits, focal.VectorHit{
			URL:   r.Metadata["url"],
			Title: r.Metadata["title"],
			Chunk: r.Content,
			Score: r.Similarity,
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// IndexFromPending embeds and stores a previously parked document. An
// EmbedderUnavailableError propagates unwrapped so the worker can
// reschedule; callers clear the queue row on success.
func (s *Store) IndexFromPending(ctx context.Context, rec *focal.PendingVector) error {
	if rec == nil || rec.DocID == "" {
		return focal.Errorf(focal.EINVALID, "pending record requires a doc id")
	}

	// A direct upsert may have indexed the same content while the record
	// sat in the queue.
	if prev, ok := s.ledger.Get(rec.DocID); ok && prev == rec.ContentHash {
		return nil
	}
	if len(rec.Chunks) == 0 {
		return s.commitFingerprint(rec.DocID, rec.ContentHash, rec.SimHash)
	}

	vectors, err := s.embedder.Embed(ctx, chunkTexts(rec.Chunks))
	if err != nil {
		return err
	}
	if len(vectors) != len(rec.Chunks) {
		return focal.Errorf(focal.EINTERNAL, "embedder returned %d vectors for %d chunks", len(vectors), len(rec.Chunks))
	}

	title := rec.ResolvedTitle
	if title == "" {
		title = resolveTitle(rec.Title, rec.URL)
	}
	docs := chunkDocuments(rec.DocID, rec.URL, title, rec.Metadata, rec.Chunks, vectors)
	return s.replaceChunks(ctx, rec.DocID, docs, rec.ContentHash, rec.SimHash)
}

// replaceChunks swaps all chunks of a doc id under the store lock and
// records the new fingerprints only after both writes succeed.
func (s *Store) replaceChunks(ctx context.Context, docID string, docs []chromem.Document, contentHash string, sig uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.col.Delete(ctx, map[string]string{"doc_id": docID}, nil); err != nil {
		return focal.Errorf(focal.EINTERNAL, "delete prior chunks of %s: %v", docID, err)
	}
	if err := s.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return focal.Errorf(focal.EINTERNAL, "add chunks of %s: %v", docID, err)
	}
	return s.recordFingerprint(docID, contentHash, sig)
}

func (s *Store) commitFingerprint(docID, contentHash string, sig uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordFingerprint(docID, contentHash, sig)
}

// recordFingerprint requires s.mu held.
func (s *Store) recordFingerprint(docID, contentHash string, sig uint64) error {
	s.ledger.Set(docID, contentHash)
	s.simhashes.Update(docID, sig)
	if err := s.ledger.Save(); err != nil {
		return err
	}
	return s.simhashes.Save()
}

// chunkDocuments builds one chromem document per chunk. Reserved metadata
// keys win over caller-provided ones.
func chunkDocuments(docID, url, title string, meta map[string]string, chunks []focal.Chunk, vectors [][]float32) []chromem.Document {
	docs := make([]chromem.Document, 0, len(chunks))
	for i, chunk := range chunks {
		m := make(map[string]string, len(meta)+7)
		for k, v := range meta {
			m[k] = v
		}
		m["doc_id"] = docID
		m["url"] = url
		m["title"] = title
		m["chunk"] = strconv.Itoa(i)
		m["start"] = strconv.Itoa(chunk.Start)
		m["end"] = strconv.Itoa(chunk.End)
		m["token_count"] = strconv.Itoa(chunk.TokenCount)
		docs = append(docs, chromem.Document{
			ID:        docID + "#" + strconv.Itoa(i),
			Metadata:  m,
			Embedding: vectors[i],
			Content:   chunk.Text,
		})
	}
	return docs
}

func chunkTexts(chunks []focal.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	return texts
}

// cleanText collapses whitespace runs to single spaces so fingerprints and
// embeddings ignore formatting-only changes.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveTitle falls back to the URL without its scheme when no title is
// known, so hits always render with something readable.
func resolveTitle(title, url string) string {
	title = strings.TrimSpace(title)
	if title != "" {
		return title
	}
	trimmed := strings.TrimPrefix(url, "https://")
	return strings.TrimPrefix(trimmed, "http://")
}

// sanitizeMetadata coerces caller metadata to the string map chromem
// stores: nils dropped, lists and maps JSON-encoded, scalars and
// everything else stringified.
func sanitizeMetadata(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		if k == "" || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			switch reflect.TypeOf(v).Kind() {
			case reflect.Slice, reflect.Array, reflect.Map:
				if data, err := json.Marshal(v); err == nil {
					out[k] = string(data)
					continue
				}
				out[k] = fmt.Sprint(v)
			default:
				out[k] = fmt.Sprint(v)
			}
		}
	}
	return out
}

// searchFilters drops empty keys and values; chromem treats the remainder
// as metadata equality.
func searchFilters(filters map[string]string) map[string]string {
	var where map[string]string
	for k, v := range filters {
		if k == "" || v == "" {
			continue
		}
		if where == nil {
			where = make(map[string]string, len(filters))
		}
		where[k] = v
	}
	return where
}
