package fs

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/usefocal/focal"
)

// Ensure Ledger implements focal.Ledger at compile time.
var _ focal.Ledger = (*Ledger)(nil)

// Ledger is a JSON-file-backed map from URL to content hash.
// An unreadable or missing file starts the ledger empty; corruption is
// logged, never fatal.
type Ledger struct {
	mu      sync.RWMutex
	path    string
	entries map[string]string
}

// OpenLedger loads the ledger at path, starting empty when the file is
// missing or unreadable.
func OpenLedger(path string, logger zerolog.Logger) *Ledger {
	l := &Ledger{
		path:    path,
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error().Err(err).Str("path", path).Msg("ledger unreadable, starting empty")
		}
		return l
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("ledger corrupt, starting empty")
		l.entries = make(map[string]string)
	}
	return l
}

func (l *Ledger) Get(url string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	hash, ok := l.entries[url]
	return hash, ok
}

func (l *Ledger) Set(url, hash string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[url] = hash
}

func (l *Ledger) Save() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return saveJSON(l.path, l.entries)
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
