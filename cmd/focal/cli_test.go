package main_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usefocal/focal"
	main "github.com/usefocal/focal/cmd/focal"
	"github.com/usefocal/focal/fs"
	"github.com/usefocal/focal/mock"
)

// testDeps returns Dependencies with buffers for output and a quiet logger.
func testDeps() (*main.Dependencies, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return &main.Dependencies{
		Ctx:    context.Background(),
		Stdout: stdout,
		Stderr: stderr,
		Logger: zerolog.Nop(),
	}, stdout, stderr
}

func TestSearchCmd(t *testing.T) {
	t.Parallel()

	t.Run("prints ranked results with scores", func(t *testing.T) {
		t.Parallel()

		deps, stdout, stderr := testDeps()
		var gotQuery string
		var gotOpts focal.SearchOptions
		deps.Search = &mock.SearchService{
			SearchFn: func(ctx context.Context, query string, opts focal.SearchOptions) (*focal.SearchResponse, error) {
				gotQuery = query
				gotOpts = opts
				return &focal.SearchResponse{
					Results: []focal.SearchResult{
						{Title: "Raft explained", URL: "https://example.org/raft", BlendedScore: 0.91, MatchReason: focal.MatchBoth, Snippet: "leader election in depth"},
						{Title: "Paxos notes", URL: "https://example.org/paxos", BlendedScore: 0.55, MatchReason: focal.MatchKeyword},
					},
					Confidence: 0.78,
				}, nil
			},
		}

		cmd := &main.SearchCmd{Query: "consensus algorithms", Limit: 5, LLM: true}
		err := cmd.Run(deps)

		require.NoError(t, err)
		assert.Equal(t, "consensus algorithms", gotQuery)
		assert.Equal(t, 5, gotOpts.Limit)
		assert.True(t, gotOpts.UseLLM)
		assert.Contains(t, stdout.String(), "Raft explained")
		assert.Contains(t, stdout.String(), "https://example.org/raft")
		assert.Contains(t, stdout.String(), "leader election in depth")
		assert.Contains(t, stdout.String(), "2 results, confidence 0.78")
		assert.Empty(t, stderr.String())
	})

	t.Run("notes keyword fallback on stderr", func(t *testing.T) {
		t.Parallel()

		deps, _, stderr := testDeps()
		deps.Search = &mock.SearchService{
			SearchFn: func(ctx context.Context, query string, opts focal.SearchOptions) (*focal.SearchResponse, error) {
				return &focal.SearchResponse{
					Results:         []focal.SearchResult{{Title: "Hit", URL: "https://example.org/"}},
					KeywordFallback: true,
				}, nil
			},
		}

		err := (&main.SearchCmd{Query: "anything"}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stderr.String(), "keyword results only")
	})

	t.Run("json flag emits the raw response", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := testDeps()
		deps.Search = &mock.SearchService{
			SearchFn: func(ctx context.Context, query string, opts focal.SearchOptions) (*focal.SearchResponse, error) {
				return &focal.SearchResponse{
					Results: []focal.SearchResult{{Title: "Hit", URL: "https://example.org/", BlendedScore: 0.5}},
				}, nil
			},
		}

		err := (&main.SearchCmd{Query: "anything", JSON: true}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), `"blended_score": 0.5`)
		assert.Contains(t, stdout.String(), `"url": "https://example.org/"`)
	})

	t.Run("reports empty result sets", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := testDeps()
		deps.Search = &mock.SearchService{
			SearchFn: func(ctx context.Context, query string, opts focal.SearchOptions) (*focal.SearchResponse, error) {
				return &focal.SearchResponse{}, nil
			},
		}

		err := (&main.SearchCmd{Query: "no such thing"}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "No results.")
	})

	t.Run("propagates search errors", func(t *testing.T) {
		t.Parallel()

		deps, _, stderr := testDeps()
		deps.Search = &mock.SearchService{
			SearchFn: func(ctx context.Context, query string, opts focal.SearchOptions) (*focal.SearchResponse, error) {
				return nil, focal.Errorf(focal.EINTERNAL, "index corrupted")
			},
		}

		err := (&main.SearchCmd{Query: "anything"}).Run(deps)

		require.Error(t, err)
		assert.Contains(t, stderr.String(), "error:")
	})
}

func TestJobsCmd(t *testing.T) {
	t.Parallel()

	t.Run("lists recent jobs", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := testDeps()
		deps.JobStore = &mock.JobStore{
			RecentJobsFn: func(ctx context.Context, limit int) ([]*focal.Job, error) {
				assert.Equal(t, 20, limit)
				return []*focal.Job{
					{ID: "job-1", State: focal.JobDone, Progress: 100, DisplayQuery: "rust async runtimes"},
					{ID: "job-2", State: focal.JobRunning, Progress: 40, DisplayQuery: "zig comptime"},
				}, nil
			},
		}

		err := (&main.JobsCmd{}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "job-1")
		assert.Contains(t, stdout.String(), "rust async runtimes")
		assert.Contains(t, stdout.String(), "job-2")
		assert.Contains(t, stdout.String(), "40%")
	})

	t.Run("shows one job by id", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := testDeps()
		deps.JobStore = &mock.JobStore{
			FindJobFn: func(ctx context.Context, id string) (*focal.Job, error) {
				assert.Equal(t, "job-7", id)
				return &focal.Job{
					ID:           "job-7",
					State:        focal.JobError,
					DisplayQuery: "quantum error correction",
					Error:        "all fetches failed",
					Stats:        focal.JobStats{SeedCount: 12},
				}, nil
			},
		}

		err := (&main.JobsCmd{ID: "job-7"}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "quantum error correction")
		assert.Contains(t, stdout.String(), "all fetches failed")
		assert.Contains(t, stdout.String(), "12 seeds")
	})

	t.Run("suggests refresh when history is empty", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := testDeps()
		deps.JobStore = &mock.JobStore{
			RecentJobsFn: func(ctx context.Context, limit int) ([]*focal.Job, error) {
				return nil, nil
			},
		}

		err := (&main.JobsCmd{}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "focal refresh")
	})
}

func TestUpsertCmd(t *testing.T) {
	t.Parallel()

	writeDoc := func(t *testing.T, text string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "doc.txt")
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
		return path
	}

	t.Run("indexes a file", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := testDeps()
		var gotReq focal.UpsertRequest
		deps.Vectors = &mock.VectorStore{
			UpsertDocumentFn: func(ctx context.Context, req focal.UpsertRequest) (*focal.UpsertResult, error) {
				gotReq = req
				return &focal.UpsertResult{DocID: "doc-1", Chunks: 3, Dims: 768}, nil
			},
		}

		cmd := &main.UpsertCmd{
			File:  writeDoc(t, "a long enough body of text"),
			URL:   "https://example.org/notes",
			Title: "Notes",
		}
		err := cmd.Run(deps)

		require.NoError(t, err)
		assert.Equal(t, "https://example.org/notes", gotReq.URL)
		assert.Equal(t, "Notes", gotReq.Title)
		assert.Contains(t, gotReq.Text, "long enough body")
		assert.Contains(t, stdout.String(), "doc-1 indexed: 3 chunks, 768 dims")
	})

	t.Run("reports queueing when the embedder is down", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := testDeps()
		deps.Vectors = &mock.VectorStore{
			UpsertDocumentFn: func(ctx context.Context, req focal.UpsertRequest) (*focal.UpsertResult, error) {
				return &focal.UpsertResult{DocID: "doc-2", Queued: true}, nil
			},
		}

		err := (&main.UpsertCmd{File: writeDoc(t, "text")}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "queued")
		assert.Contains(t, stdout.String(), "pending worker")
	})

	t.Run("reports near-duplicate skips", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := testDeps()
		deps.Vectors = &mock.VectorStore{
			UpsertDocumentFn: func(ctx context.Context, req focal.UpsertRequest) (*focal.UpsertResult, error) {
				return &focal.UpsertResult{DocID: "doc-3", Skipped: true, DuplicateOf: "doc-1"}, nil
			},
		}

		err := (&main.UpsertCmd{File: writeDoc(t, "text")}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "near duplicate of doc-1")
	})

	t.Run("rejects empty input", func(t *testing.T) {
		t.Parallel()

		deps, _, _ := testDeps()

		err := (&main.UpsertCmd{File: writeDoc(t, "   \n")}).Run(deps)

		require.Error(t, err)
		assert.Equal(t, focal.EINVALID, focal.ErrorCode(err))
	})

	t.Run("rejects unreadable files", func(t *testing.T) {
		t.Parallel()

		deps, _, _ := testDeps()

		err := (&main.UpsertCmd{File: filepath.Join(t.TempDir(), "missing.txt")}).Run(deps)

		require.Error(t, err)
		assert.Equal(t, focal.EINVALID, focal.ErrorCode(err))
	})
}

func TestExportCmd(t *testing.T) {
	t.Parallel()

	t.Run("writes every normalized document", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := testDeps()
		deps.Normalized = &mock.NormalizedStore{
			ReadAllFn: func(ctx context.Context) ([]*focal.Document, error) {
				return []*focal.Document{
					{URL: "https://example.org/a", Title: "A", Body: "body of a"},
					{URL: "https://example.org/b", Title: "B", Body: "body of b"},
				}, nil
			},
		}
		deps.RawDir = t.TempDir() // no raw batches, text fallback everywhere
		deps.Raw = &mock.RawCrawlStore{}
		deps.Tokens = &mock.TokenCounter{
			CountTokensFn: func(ctx context.Context, text string) (int, error) { return 4, nil },
		}
		deps.ExportDir = fs.NewExportStore

		outDir := t.TempDir()
		err := (&main.ExportCmd{Dir: outDir}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "exported 2 documents")
		assert.Contains(t, stdout.String(), "~8 tokens")

		entries, err := os.ReadDir(filepath.Join(outDir, "export"))
		require.NoError(t, err)
		assert.NotEmpty(t, entries)
	})

	t.Run("nothing to export", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := testDeps()
		deps.Normalized = &mock.NormalizedStore{
			ReadAllFn: func(ctx context.Context) ([]*focal.Document, error) { return nil, nil },
		}

		err := (&main.ExportCmd{Dir: t.TempDir()}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "Nothing to export")
	})

	t.Run("converts raw HTML to markdown when available", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := testDeps()
		deps.Normalized = &mock.NormalizedStore{
			ReadAllFn: func(ctx context.Context) ([]*focal.Document, error) {
				return []*focal.Document{{URL: "https://example.org/a", Title: "A", Body: "plain text"}}, nil
			},
		}

		rawDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(rawDir, "job-1.jsonl"), []byte("{}\n"), 0o644))
		deps.RawDir = rawDir
		deps.Raw = &mock.RawCrawlStore{
			ReadBatchFn: func(ctx context.Context, batchID string) ([]*focal.RawRecord, error) {
				assert.Equal(t, "job-1", batchID)
				return []*focal.RawRecord{{URL: "https://example.org/a", HTML: "<article><h1>A</h1></article>"}}, nil
			},
		}
		deps.Extractor = &mock.Extractor{
			ExtractFn: func(html string) (*focal.ExtractResult, error) {
				return &focal.ExtractResult{ContentHTML: "<h1>A</h1>"}, nil
			},
		}
		deps.Converter = &mock.Converter{
			ConvertFn: func(html string) (string, error) { return "# A\n", nil },
		}
		deps.Tokens = &mock.TokenCounter{
			CountTokensFn: func(ctx context.Context, text string) (int, error) { return 2, nil },
		}
		deps.ExportDir = fs.NewExportStore

		err := (&main.ExportCmd{Dir: t.TempDir()}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "exported 1 documents")
	})
}
