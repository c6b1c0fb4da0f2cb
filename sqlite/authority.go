package sqlite

import (
	"context"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/usefocal/focal"
)

// authorityTTL bounds how stale the inlink snapshot may get. Discovery
// scoring tolerates old numbers, so the snapshot is rebuilt lazily.
const authorityTTL = 5 * time.Minute

// Compile-time interface verification.
var _ focal.AuthorityIndex = (*AuthorityIndex)(nil)

// AuthorityIndex scores hosts by how often crawled pages link to them.
// Scores are log-scaled inlink counts normalized against the best-linked
// host, so the range is [0,1] regardless of graph size.
type AuthorityIndex struct {
	db *DB

	mu        sync.Mutex
	scores    map[string]float64
	refreshed time.Time
}

// NewAuthorityIndex creates an index over the learned-web link graph.
func NewAuthorityIndex(db *DB) *AuthorityIndex {
	return &AuthorityIndex{db: db}
}

// Authority returns the host's score, zero for hosts nothing links to.
func (a *AuthorityIndex) Authority(host string) float64 {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scores == nil || time.Since(a.refreshed) > authorityTTL {
		a.refresh()
	}
	return a.scores[host]
}

// refresh rebuilds the snapshot. A failed query keeps the previous
// snapshot and retries after the TTL.
func (a *AuthorityIndex) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := a.inlinkCounts(ctx)
	if err != nil {
		a.refreshed = time.Now()
		return
	}

	var maxCount float64
	for _, n := range counts {
		if n > maxCount {
			maxCount = n
		}
	}

	scores := make(map[string]float64, len(counts))
	if maxCount > 0 {
		denom := math.Log1p(maxCount)
		for host, n := range counts {
			scores[host] = math.Log1p(n) / denom
		}
	}
	a.scores = scores
	a.refreshed = time.Now()
}

// inlinkCounts tallies distinct linking pages per destination host.
func (a *AuthorityIndex) inlinkCounts(ctx context.Context) (map[string]float64, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT to_url, COUNT(DISTINCT from_page_id)
		FROM links
		GROUP BY to_url
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]float64)
	for rows.Next() {
		var toURL string
		var n float64
		if err := rows.Scan(&toURL, &n); err != nil {
			return nil, err
		}
		u, err := url.Parse(toURL)
		if err != nil || u.Hostname() == "" {
			continue
		}
		counts[strings.ToLower(u.Hostname())] += n
	}
	return counts, rows.Err()
}
