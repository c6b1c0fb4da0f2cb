package crawl

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/usefocal/focal"
)

// Frontier defaults.
const (
	DefaultPerHostCap   = 3
	DefaultRerankMargin = 0.15
)

// FrontierOptions configures BuildFrontier. Budget caps how many
// candidates survive, keeping the best-scored; zero or negative means no
// cap. PerHostCap and RerankMargin fall back to their defaults when
// non-positive. Reranker is only consulted when non-nil.
type FrontierOptions struct {
	Budget       int
	PerHostCap   int
	RerankMargin float64
	Reranker     focal.Reranker
	Query        string
	Model        string
}

// BuildFrontier orders scored candidates into a crawl sequence: best score
// first with a stable URL tie-break, at most PerHostCap URLs per host, the
// best Budget of what remains, interleaved across hosts so a
// single-threaded crawler pausing between fetches never hammers one host
// while others wait. When a reranker is configured, the cluster of
// candidates within RerankMargin of the leader is reordered by it.
func BuildFrontier(ctx context.Context, candidates []focal.Candidate, opts FrontierOptions) []focal.Candidate {
	if len(candidates) == 0 {
		return nil
	}
	perHost := opts.PerHostCap
	if perHost <= 0 {
		perHost = DefaultPerHostCap
	}
	margin := opts.RerankMargin
	if margin <= 0 {
		margin = DefaultRerankMargin
	}

	sorted := make([]focal.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].URL < sorted[j].URL
	})

	capped := capPerHost(sorted, perHost)
	if opts.Budget > 0 && len(capped) > opts.Budget {
		capped = capped[:opts.Budget]
	}
	frontier := interleaveHosts(capped)

	if opts.Reranker != nil && len(frontier) > 1 {
		frontier = rerankTopCluster(ctx, frontier, opts, margin)
	}
	return frontier
}

// capPerHost keeps at most limit candidates per hostname, preserving
// order. Candidates with unparseable URLs share one bucket.
func capPerHost(sorted []focal.Candidate, limit int) []focal.Candidate {
	counts := make(map[string]int)
	out := make([]focal.Candidate, 0, len(sorted))
	for _, c := range sorted {
		host := hostOf(c.URL)
		if counts[host] >= limit {
			continue
		}
		counts[host]++
		out = append(out, c)
	}
	return out
}

// interleaveHosts round-robins across hosts in order of each host's best
// candidate. Within a host the score order is preserved. Two consecutive
// entries share a host only when no other host has candidates left.
func interleaveHosts(capped []focal.Candidate) []focal.Candidate {
	if len(capped) < 2 {
		return capped
	}

	var hosts []string
	byHost := make(map[string][]focal.Candidate)
	for _, c := range capped {
		host := hostOf(c.URL)
		if _, ok := byHost[host]; !ok {
			hosts = append(hosts, host)
		}
		byHost[host] = append(byHost[host], c)
	}

	out := make([]focal.Candidate, 0, len(capped))
	for round := 0; len(out) < len(capped); round++ {
		for _, host := range hosts {
			if queue := byHost[host]; round < len(queue) {
				out = append(out, queue[round])
			}
		}
	}
	return out
}

// rerankTopCluster sends the candidates scoring within margin of the
// leader to the reranker and applies the returned order to their slots.
// Anything but a clean permutation of the cluster leaves it untouched.
func rerankTopCluster(ctx context.Context, frontier []focal.Candidate, opts FrontierOptions, margin float64) []focal.Candidate {
	leader := frontier[0].Score
	for _, c := range frontier {
		if c.Score > leader {
			leader = c.Score
		}
	}

	var slots []int
	byURL := make(map[string]focal.Candidate)
	urls := make([]string, 0, len(frontier))
	for i, c := range frontier {
		if leader-c.Score <= margin {
			slots = append(slots, i)
			byURL[c.URL] = c
			urls = append(urls, c.URL)
		}
	}
	if len(slots) < 2 || len(byURL) != len(slots) {
		return frontier
	}

	ranked, err := opts.Reranker.Rerank(ctx, opts.Query, urls, opts.Model)
	if err != nil || len(ranked) != len(urls) {
		return frontier
	}
	seen := make(map[string]struct{}, len(ranked))
	for _, u := range ranked {
		if _, ok := byURL[u]; !ok {
			return frontier
		}
		if _, dup := seen[u]; dup {
			return frontier
		}
		seen[u] = struct{}{}
	}

	out := make([]focal.Candidate, len(frontier))
	copy(out, frontier)
	for i, slot := range slots {
		out[slot] = byURL[ranked[i]]
	}
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
