package fs

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/usefocal/focal"
)

// Ensure SimHashFile implements focal.SimHashIndex at compile time.
var _ focal.SimHashIndex = (*SimHashFile)(nil)

// simhashEntry is one persisted url -> signature pair. Entries are stored
// as an ordered array so the nearest scan stays insertion-stable across
// restarts.
type simhashEntry struct {
	URL     string `json:"url"`
	SimHash uint64 `json:"simhash"`
}

// SimHashFile is a JSON-file-backed SimHash index with linear
// nearest-by-Hamming lookup.
type SimHashFile struct {
	mu      sync.RWMutex
	path    string
	order   []string
	entries map[string]uint64
}

// OpenSimHashFile loads the index at path, starting empty when the file is
// missing or unreadable.
func OpenSimHashFile(path string, logger zerolog.Logger) *SimHashFile {
	s := &SimHashFile{
		path:    path,
		entries: make(map[string]uint64),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error().Err(err).Str("path", path).Msg("simhash index unreadable, starting empty")
		}
		return s
	}

	var stored []simhashEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("simhash index corrupt, starting empty")
		return s
	}
	for _, e := range stored {
		if _, ok := s.entries[e.URL]; !ok {
			s.order = append(s.order, e.URL)
		}
		s.entries[e.URL] = e.SimHash
	}
	return s
}

// Nearest returns the first URL, in insertion order, whose signature is
// within threshold Hamming distance of sig.
func (s *SimHashFile) Nearest(sig uint64, threshold int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, url := range s.order {
		if focal.HammingDistance(s.entries[url], sig) <= threshold {
			return url, true
		}
	}
	return "", false
}

// Update records the signature for a URL, overwriting any prior entry
// without disturbing its insertion position.
func (s *SimHashFile) Update(url string, sig uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[url]; !ok {
		s.order = append(s.order, url)
	}
	s.entries[url] = sig
}

func (s *SimHashFile) Save() error {
	s.mu.RLock()
	stored := make([]simhashEntry, 0, len(s.order))
	for _, url := range s.order {
		stored = append(stored, simhashEntry{URL: url, SimHash: s.entries[url]})
	}
	s.mu.RUnlock()
	return saveJSON(s.path, stored)
}

func (s *SimHashFile) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
