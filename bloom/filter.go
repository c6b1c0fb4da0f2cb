// Package bloom provides the probabilistic seen-set used to keep a
// focused crawl from fetching the same URL twice within a run.
package bloom

import "github.com/bits-and-blooms/bloom/v3"

// SeenSet tracks URLs a crawl has already visited. It may report a
// never-visited URL as seen (at the configured false positive rate),
// which costs the crawl one candidate; it never reports a visited URL
// as unseen, so no URL is fetched twice.
type SeenSet struct {
	f *bloom.BloomFilter
}

// NewSeenSet sizes a seen-set for n expected URLs at the given false
// positive rate.
func NewSeenSet(n uint, fpRate float64) *SeenSet {
	return &SeenSet{
		f: bloom.NewWithEstimates(n, fpRate),
	}
}

// Visit marks the URL as seen and reports whether it was already there.
func (s *SeenSet) Visit(url string) bool {
	return s.f.TestAndAddString(url)
}

// Seen reports whether the URL might have been visited.
func (s *SeenSet) Seen(url string) bool {
	return s.f.TestString(url)
}

// Len returns the approximate number of distinct URLs visited.
func (s *SeenSet) Len() uint {
	return uint(s.f.ApproximatedSize())
}
