package focal

import (
	"os"
	"path/filepath"
)

// Paths collects every filesystem location the engine touches. Components
// receive the whole value; nothing reads path configuration ad hoc.
type Paths struct {
	DataDir           string
	IndexDir          string
	CrawlRawDir       string
	NormalizedPath    string
	LedgerPath        string
	SimHashPath       string
	VectorLedgerPath  string
	VectorSimHashPath string
	LastIndexTimePath string
	LogsDir           string
	LearnedWebDBPath  string
	AppStateDBPath    string
	VectorDir         string
	SeedRegistryPath  string
}

// DefaultPaths derives the standard layout under a data directory.
func DefaultPaths(dataDir string) Paths {
	return Paths{
		DataDir:           dataDir,
		IndexDir:          filepath.Join(dataDir, "index"),
		CrawlRawDir:       filepath.Join(dataDir, "crawl", "raw"),
		NormalizedPath:    filepath.Join(dataDir, "normalized", "normalized.jsonl"),
		LedgerPath:        filepath.Join(dataDir, "index_ledger.json"),
		SimHashPath:       filepath.Join(dataDir, "simhash_index.json"),
		VectorLedgerPath:  filepath.Join(dataDir, "vector_ledger.json"),
		VectorSimHashPath: filepath.Join(dataDir, "vector_simhash.json"),
		LastIndexTimePath: filepath.Join(dataDir, "state", ".last_index_time"),
		LogsDir:           filepath.Join(dataDir, "logs"),
		LearnedWebDBPath:  filepath.Join(dataDir, "learned_web.sqlite3"),
		AppStateDBPath:    filepath.Join(dataDir, "app_state.sqlite3"),
		VectorDir:         filepath.Join(dataDir, "chroma"),
		SeedRegistryPath:  filepath.Join(dataDir, "seeds.yaml"),
	}
}

// Validate rejects layouts that would write to the filesystem root or leave
// a location unset.
func (p Paths) Validate() error {
	for _, loc := range p.all() {
		if loc == "" {
			return Errorf(EINVALID, "path configuration has an empty location")
		}
		abs, err := filepath.Abs(loc)
		if err != nil {
			return Errorf(EINVALID, "path %q: %v", loc, err)
		}
		if abs == string(filepath.Separator) {
			return Errorf(EINVALID, "path %q resolves to the filesystem root", loc)
		}
	}
	return nil
}

// EnsureDirs creates every directory in the layout.
func (p Paths) EnsureDirs() error {
	dirs := []string{
		p.DataDir,
		p.IndexDir,
		p.CrawlRawDir,
		filepath.Dir(p.NormalizedPath),
		filepath.Dir(p.LastIndexTimePath),
		p.LogsDir,
		p.VectorDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Errorf(EINTERNAL, "create %s: %v", dir, err)
		}
	}
	return nil
}

func (p Paths) all() []string {
	return []string{
		p.DataDir,
		p.IndexDir,
		p.CrawlRawDir,
		p.NormalizedPath,
		p.LedgerPath,
		p.SimHashPath,
		p.VectorLedgerPath,
		p.VectorSimHashPath,
		p.LastIndexTimePath,
		p.LogsDir,
		p.LearnedWebDBPath,
		p.AppStateDBPath,
		p.VectorDir,
		p.SeedRegistryPath,
	}
}
