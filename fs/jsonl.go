package fs

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/usefocal/focal"
)

// Ensure the JSONL stores implement their interfaces at compile time.
var (
	_ focal.RawCrawlStore   = (*RawStore)(nil)
	_ focal.NormalizedStore = (*NormalizedFile)(nil)
)

// RawStore appends crawler output to per-batch JSONL files under a
// directory.
type RawStore struct {
	mu  sync.Mutex
	dir string
}

// NewRawStore creates a raw crawl store rooted at dir.
func NewRawStore(dir string) *RawStore {
	return &RawStore{dir: dir}
}

// Append writes records as JSONL lines to <dir>/<batch>.jsonl and returns
// the file path.
func (s *RawStore) Append(ctx context.Context, batch string, recs []*focal.RawRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, batch+".jsonl")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return "", err
		}
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return path, nil
}

// ReadBatch returns all records of a batch file.
func (s *RawStore) ReadBatch(ctx context.Context, batch string) ([]*focal.RawRecord, error) {
	path := filepath.Join(s.dir, batch+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, focal.Errorf(focal.ENOTFOUND, "crawl batch %q not found", batch)
		}
		return nil, err
	}
	defer f.Close()

	var recs []*focal.RawRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec focal.RawRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Skip torn lines rather than losing the batch.
			continue
		}
		recs = append(recs, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// NormalizedFile is the accumulating JSONL store of normalized documents.
type NormalizedFile struct {
	mu   sync.Mutex
	path string
}

// NewNormalizedFile creates a normalized store at path.
func NewNormalizedFile(path string) *NormalizedFile {
	return &NormalizedFile{path: path}
}

// Append writes documents as JSONL lines.
func (s *NormalizedFile) Append(ctx context.Context, docs []*focal.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ReadAll returns every stored document. Later lines win for repeated URLs
// so reindexing sees the freshest version.
func (s *NormalizedFile) ReadAll(ctx context.Context) ([]*focal.Document, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	byURL := make(map[string]int)
	var docs []*focal.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var doc focal.Document
		if err := json.Unmarshal(line, &doc); err != nil {
			continue
		}
		if i, ok := byURL[doc.URL]; ok {
			docs[i] = &doc
			continue
		}
		byURL[doc.URL] = len(docs)
		docs = append(docs, &doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
