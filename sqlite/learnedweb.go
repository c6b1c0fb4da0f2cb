package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/usefocal/focal"
)

// Similarity-seeding knobs. Past queries closer than minSimilarity
// contribute their best discoveries, a handful per query so one near-twin
// query cannot monopolize the seed list.
const (
	minSimilarity = 0.35
	perQuerySeeds = 5
)

// Compile-time interface verification.
var _ focal.LearnedWebService = (*LearnedWebService)(nil)

// LearnedWebService implements focal.LearnedWebService using SQLite.
// Writes are serialized behind a mutex; merge semantics live in ON CONFLICT
// clauses so replayed or concurrent upserts stay commutative.
type LearnedWebService struct {
	mu sync.Mutex
	db *DB
}

// NewLearnedWebService creates the service and ensures the schema.
func NewLearnedWebService(db *DB) (*LearnedWebService, error) {
	s := &LearnedWebService{db: db}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create learned-web schema: %w", err)
	}
	return s, nil
}

// createSchema creates the learned-web tables if they don't exist.
func (s *LearnedWebService) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS domains (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host TEXT NOT NULL UNIQUE,
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL,
			learned_score REAL NOT NULL DEFAULT 0,
			discovery_count INTEGER NOT NULL DEFAULT 0,
			last_discovery_reason TEXT NOT NULL DEFAULT '',
			last_crawl_at TEXT NOT NULL DEFAULT '',
			last_index_at TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS pages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL UNIQUE,
			domain_id INTEGER NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
			title TEXT NOT NULL DEFAULT '',
			status INTEGER NOT NULL DEFAULT 0,
			fingerprint_simhash TEXT NOT NULL DEFAULT '',
			fingerprint_md5 TEXT NOT NULL DEFAULT '',
			fetched_at TEXT NOT NULL,
			indexed_at TEXT NOT NULL DEFAULT '',
			crawl_id TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_pages_domain_id ON pages(domain_id);

		CREATE TABLE IF NOT EXISTS links (
			from_page_id INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
			to_url TEXT NOT NULL,
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL,
			crawl_id TEXT NOT NULL DEFAULT '',
			UNIQUE(from_page_id, to_url)
		);

		CREATE TABLE IF NOT EXISTS crawls (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT NOT NULL DEFAULT '',
			pages_fetched INTEGER NOT NULL DEFAULT 0,
			docs_indexed INTEGER NOT NULL DEFAULT 0,
			budget INTEGER NOT NULL DEFAULT 0,
			seed_count INTEGER NOT NULL DEFAULT 0,
			use_llm INTEGER NOT NULL DEFAULT 0,
			model TEXT NOT NULL DEFAULT '',
			raw_path TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS discoveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query TEXT NOT NULL,
			domain_id INTEGER NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			score REAL NOT NULL DEFAULT 0,
			discovered_at TEXT NOT NULL,
			crawl_id TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_discoveries_query ON discoveries(query);
		CREATE INDEX IF NOT EXISTS idx_discoveries_score ON discoveries(score);

		CREATE TABLE IF NOT EXISTS query_embeddings (
			query TEXT PRIMARY KEY,
			embedding_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	_, err := s.db.db.Exec(schema)
	return err
}

// UpsertDomain merges a domain row and returns its id.
func (s *LearnedWebService) UpsertDomain(ctx context.Context, up focal.DomainUpsert) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertDomain(ctx, s.db, up)
}

// execer covers *DB and *sql.Tx so upserts can run standalone or inside a
// transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *LearnedWebService) upsertDomain(ctx context.Context, ex execer, up focal.DomainUpsert) (int64, error) {
	host := strings.ToLower(strings.TrimSpace(up.Host))
	if host == "" {
		return 0, focal.Errorf(focal.EINVALID, "domain host required")
	}

	lastSeen := up.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now().UTC()
	}

	// MAX over RFC3339 UTC text is chronological; '' (never) loses to any
	// real timestamp. discovery_count adds, learned_score keeps its peak.
	_, err := ex.ExecContext(ctx, `
		INSERT INTO domains (host, first_seen, last_seen, learned_score, discovery_count, last_discovery_reason, last_crawl_at, last_index_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			last_seen = MAX(last_seen, excluded.last_seen),
			learned_score = MAX(learned_score, excluded.learned_score),
			discovery_count = discovery_count + excluded.discovery_count,
			last_discovery_reason = CASE WHEN excluded.last_discovery_reason != '' THEN excluded.last_discovery_reason ELSE last_discovery_reason END,
			last_crawl_at = MAX(last_crawl_at, excluded.last_crawl_at),
			last_index_at = MAX(last_index_at, excluded.last_index_at)
	`, host, formatTime(lastSeen), formatTime(lastSeen), up.LearnedScore, up.DiscoveryDelta,
		up.LastDiscoveryReason, formatTime(up.LastCrawlAt), formatTime(up.LastIndexAt))
	if err != nil {
		return 0, err
	}

	var id int64
	if err := ex.QueryRowContext(ctx, `SELECT id FROM domains WHERE host = ?`, host).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// FindDomain returns a domain by host.
func (s *LearnedWebService) FindDomain(ctx context.Context, host string) (*focal.Domain, error) {
	host = strings.ToLower(strings.TrimSpace(host))

	var d focal.Domain
	var firstSeen, lastSeen, lastCrawlAt, lastIndexAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, host, first_seen, last_seen, learned_score, discovery_count, last_discovery_reason, last_crawl_at, last_index_at
		FROM domains
		WHERE host = ?
	`, host).Scan(&d.ID, &d.Host, &firstSeen, &lastSeen, &d.LearnedScore,
		&d.DiscoveryCount, &d.LastDiscoveryReason, &lastCrawlAt, &lastIndexAt)

	if err == sql.ErrNoRows {
		return nil, focal.Errorf(focal.ENOTFOUND, "domain not found")
	}
	if err != nil {
		return nil, err
	}

	d.FirstSeen = parseTime(firstSeen)
	d.LastSeen = parseTime(lastSeen)
	d.LastCrawlAt = parseTime(lastCrawlAt)
	d.LastIndexAt = parseTime(lastIndexAt)
	return &d, nil
}

// RecordDiscovery upserts the URL's host, appends a discoveries row and
// returns the domain id. created is true only on the first sighting of the
// host.
func (s *LearnedWebService) RecordDiscovery(ctx context.Context, query, rawURL, reason, source string, score float64, crawlID string) (int64, bool, error) {
	clean, ok := focal.SanitizeURL(rawURL, nil)
	if !ok {
		return 0, false, focal.Errorf(focal.EINVALID, "unusable discovery URL %q", rawURL)
	}
	u, err := url.Parse(clean)
	if err != nil || u.Hostname() == "" {
		return 0, false, focal.Errorf(focal.EINVALID, "unusable discovery URL %q", rawURL)
	}
	host := strings.ToLower(u.Hostname())

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	var created bool
	var existing int64
	switch err := tx.QueryRowContext(ctx, `SELECT id FROM domains WHERE host = ?`, host).Scan(&existing); err {
	case sql.ErrNoRows:
		created = true
	case nil:
	default:
		return 0, false, err
	}

	now := time.Now().UTC()
	domainID, err := s.upsertDomain(ctx, tx, focal.DomainUpsert{
		Host:                host,
		LastSeen:            now,
		LearnedScore:        score,
		DiscoveryDelta:      1,
		LastDiscoveryReason: reason,
	})
	if err != nil {
		return 0, false, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO discoveries (query, domain_id, url, reason, source, score, discovered_at, crawl_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, query, domainID, clean, reason, source, score, formatTime(now), crawlID); err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return domainID, created, nil
}

// TopDiscoveries returns the best-scored discoveries, newest first within
// equal scores.
func (s *LearnedWebService) TopDiscoveries(ctx context.Context, limit int) ([]*focal.Discovery, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, domain_id, url, reason, source, score, discovered_at, crawl_id
		FROM discoveries
		ORDER BY score DESC, discovered_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*focal.Discovery
	for rows.Next() {
		var d focal.Discovery
		var discoveredAt string
		if err := rows.Scan(&d.ID, &d.Query, &d.DomainID, &d.URL, &d.Reason,
			&d.Source, &d.Score, &discoveredAt, &d.CrawlID); err != nil {
			return nil, err
		}
		d.DiscoveredAt = parseTime(discoveredAt)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// UpsertQueryEmbedding stores an L2-normalized copy of the query embedding.
func (s *LearnedWebService) UpsertQueryEmbedding(ctx context.Context, query string, embedding []float32) error {
	if query == "" {
		return focal.Errorf(focal.EINVALID, "query required")
	}
	if len(embedding) == 0 {
		return focal.Errorf(focal.EINVALID, "embedding required")
	}

	normalized := normalizeVector(embedding)
	payload, err := json.Marshal(normalized)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_embeddings (query, embedding_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET
			embedding_json = excluded.embedding_json,
			updated_at = excluded.updated_at
	`, query, string(payload), formatTime(time.Now().UTC()))
	return err
}

// SimilarDiscoverySeeds scans stored query embeddings and, for each
// sufficiently similar past query (best first), yields its top-scored URLs
// until limit distinct URLs are produced.
func (s *LearnedWebService) SimilarDiscoverySeeds(ctx context.Context, embedding []float32, limit int) ([]string, error) {
	if len(embedding) == 0 || limit <= 0 {
		return nil, nil
	}
	probe := normalizeVector(embedding)

	rows, err := s.db.QueryContext(ctx, `SELECT query, embedding_json FROM query_embeddings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		query string
		sim   float64
	}
	var similar []scored
	for rows.Next() {
		var query, payload string
		if err := rows.Scan(&query, &payload); err != nil {
			return nil, err
		}
		var stored []float32
		if err := json.Unmarshal([]byte(payload), &stored); err != nil {
			continue
		}
		if len(stored) != len(probe) {
			continue
		}
		// Both sides are L2-normalized, so the dot product is the cosine.
		var dot float64
		for i := range probe {
			dot += float64(probe[i]) * float64(stored[i])
		}
		if dot >= minSimilarity {
			similar = append(similar, scored{query: query, sim: dot})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(similar, func(i, j int) bool { return similar[i].sim > similar[j].sim })

	seen := make(map[string]struct{})
	var seeds []string
	for _, cand := range similar {
		if len(seeds) >= limit {
			break
		}
		urls, err := s.topDiscoveryURLs(ctx, cand.query, perQuerySeeds)
		if err != nil {
			return nil, err
		}
		for _, u := range urls {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			seeds = append(seeds, u)
			if len(seeds) >= limit {
				break
			}
		}
	}
	return seeds, nil
}

func (s *LearnedWebService) topDiscoveryURLs(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url FROM discoveries
		WHERE query = ?
		ORDER BY score DESC, discovered_at DESC
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// DomainValueMap returns host -> learned score for discovery scoring.
func (s *LearnedWebService) DomainValueMap(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT host, learned_score FROM domains WHERE learned_score > 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]float64)
	for rows.Next() {
		var host string
		var score float64
		if err := rows.Scan(&host, &score); err != nil {
			return nil, err
		}
		values[host] = score
	}
	return values, rows.Err()
}

// StartCrawl inserts a crawls row.
func (s *LearnedWebService) StartCrawl(ctx context.Context, crawl *focal.CrawlRecord) error {
	if crawl.ID == "" {
		return focal.Errorf(focal.EINVALID, "crawl ID required")
	}
	if crawl.StartedAt.IsZero() {
		crawl.StartedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawls (id, query, started_at, pages_fetched, docs_indexed, budget, seed_count, use_llm, model, raw_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, crawl.ID, crawl.Query, formatTime(crawl.StartedAt), crawl.PagesFetched, crawl.DocsIndexed,
		crawl.Budget, crawl.SeedCount, boolToInt(crawl.UseLLM), crawl.Model, crawl.RawPath)
	return err
}

// CompleteCrawl finalizes a crawls row with its counters.
func (s *LearnedWebService) CompleteCrawl(ctx context.Context, id string, pagesFetched, docsIndexed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE crawls
		SET completed_at = ?, pages_fetched = ?, docs_indexed = ?
		WHERE id = ?
	`, formatTime(time.Now().UTC()), pagesFetched, docsIndexed, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return focal.Errorf(focal.ENOTFOUND, "crawl not found")
	}
	return nil
}

// RecordPage upserts a page row and returns its id. Re-fetches update the
// fingerprints and keep the newest fetch time.
func (s *LearnedWebService) RecordPage(ctx context.Context, page *focal.PageRecord) (int64, error) {
	if page.URL == "" {
		return 0, focal.Errorf(focal.EINVALID, "page URL required")
	}
	if page.FetchedAt.IsZero() {
		page.FetchedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (url, domain_id, title, status, fingerprint_simhash, fingerprint_md5, fetched_at, crawl_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			domain_id = excluded.domain_id,
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE title END,
			status = excluded.status,
			fingerprint_simhash = CASE WHEN excluded.fingerprint_simhash != '' THEN excluded.fingerprint_simhash ELSE fingerprint_simhash END,
			fingerprint_md5 = CASE WHEN excluded.fingerprint_md5 != '' THEN excluded.fingerprint_md5 ELSE fingerprint_md5 END,
			fetched_at = MAX(fetched_at, excluded.fetched_at),
			crawl_id = excluded.crawl_id
	`, page.URL, page.DomainID, page.Title, page.Status, formatSimHash(page.SimHash),
		page.MD5, formatTime(page.FetchedAt), page.CrawlID)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM pages WHERE url = ?`, page.URL).Scan(&id); err != nil {
		return 0, err
	}
	page.ID = id
	return id, nil
}

// RecordLink upserts an edge from a page to a destination URL.
func (s *LearnedWebService) RecordLink(ctx context.Context, fromPageID int64, toURL, crawlID string) error {
	if fromPageID == 0 || toURL == "" {
		return focal.Errorf(focal.EINVALID, "link endpoints required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO links (from_page_id, to_url, first_seen, last_seen, crawl_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(from_page_id, to_url) DO UPDATE SET
			last_seen = MAX(last_seen, excluded.last_seen),
			crawl_id = excluded.crawl_id
	`, fromPageID, toURL, now, now, crawlID)
	return err
}

// MarkIndexed stamps indexed_at on the pages for the given URLs and
// last_index_at on their domains.
func (s *LearnedWebService) MarkIndexed(ctx context.Context, urls []string, at time.Time) error {
	if len(urls) == 0 {
		return nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	stamp := formatTime(at)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	args := make([]any, 0, len(urls)+1)
	args = append(args, stamp)
	for _, u := range urls {
		args = append(args, u)
	}
	in := placeholders(len(urls))

	if _, err := tx.ExecContext(ctx,
		`UPDATE pages SET indexed_at = MAX(indexed_at, ?) WHERE url IN (`+in+`)`, args...); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE domains SET last_index_at = MAX(last_index_at, ?)
		 WHERE id IN (SELECT domain_id FROM pages WHERE url IN (`+in+`))`, args...); err != nil {
		return err
	}

	return tx.Commit()
}

// Close releases the database handle.
func (s *LearnedWebService) Close() error {
	return s.db.Close()
}

// normalizeVector returns an L2-normalized copy. Zero vectors come back
// unchanged.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// formatSimHash renders a 64-bit signature as decimal text. TEXT storage
// sidesteps SQLite's signed 64-bit integers.
func formatSimHash(h uint64) string {
	if h == 0 {
		return ""
	}
	return strconv.FormatUint(h, 10)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
