package bloom_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/usefocal/focal/bloom"
)

func TestSeenSet_Visit(t *testing.T) {
	t.Parallel()

	s := bloom.NewSeenSet(1000, 0.01)

	// First visit is new, every later one reports seen.
	assert.False(t, s.Visit("https://example.com/page1"))
	assert.True(t, s.Visit("https://example.com/page1"))
	assert.True(t, s.Seen("https://example.com/page1"))

	assert.False(t, s.Seen("https://example.com/page2"))
}

func TestSeenSet_Len(t *testing.T) {
	t.Parallel()

	s := bloom.NewSeenSet(1000, 0.01)

	assert.Equal(t, uint(0), s.Len())

	s.Visit("https://example.com/page1")
	s.Visit("https://example.com/page2")
	s.Visit("https://example.com/page3")

	count := s.Len()
	assert.True(t, count >= 2 && count <= 4, "expected count near 3, got %d", count)
}

func TestSeenSet_RevisitDoesNotGrow(t *testing.T) {
	t.Parallel()

	s := bloom.NewSeenSet(1000, 0.01)

	url := "https://example.com/page1"

	s.Visit(url)
	countAfterFirst := s.Len()

	s.Visit(url)
	s.Visit(url)

	assert.Equal(t, countAfterFirst, s.Len())
}

func TestSeenSet_FalsePositiveRate(t *testing.T) {
	t.Parallel()

	const (
		numItems   = 10000
		fpRate     = 0.01
		testProbes = 10000
	)

	s := bloom.NewSeenSet(numItems, fpRate)

	for i := range numItems {
		s.Visit(fmt.Sprintf("https://example.com/visited/%d", i))
	}

	falsePositives := 0
	for i := range testProbes {
		if s.Seen(fmt.Sprintf("https://example.com/unvisited/%d", i)) {
			falsePositives++
		}
	}

	// Sized for 1%; allow 2% for statistical variance.
	actualRate := float64(falsePositives) / float64(testProbes)
	assert.Less(t, actualRate, 0.02, "false positive rate %f exceeds 2%%", actualRate)
}
