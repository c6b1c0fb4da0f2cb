package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usefocal/focal"
	focalhttp "github.com/usefocal/focal/http"
	"github.com/usefocal/focal/mock"
)

func TestServer_Health(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(focalhttp.NewServer())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Refresh_CreatesJob(t *testing.T) {
	t.Parallel()

	var gotReq focal.EnqueueRequest
	s := focalhttp.NewServer()
	s.JobService = &mock.JobService{
		EnqueueFn: func(ctx context.Context, req focal.EnqueueRequest) (*focal.EnqueueResult, error) {
			gotReq = req
			return &focal.EnqueueResult{
				JobID:   "job-1",
				Created: true,
				Job:     &focal.Job{ID: "job-1", State: focal.JobQueued},
			}, nil
		},
	}
	srv := httptest.NewServer(s)
	defer srv.Close()

	body := `{"query": "zig comptime", "use_llm": true, "model": "gemini-2.5-flash"}`
	resp, err := http.Post(srv.URL+"/refresh", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "zig comptime", gotReq.Query)
	assert.True(t, gotReq.UseLLM)
	assert.Equal(t, "gemini-2.5-flash", gotReq.Model)

	var got struct {
		JobID        string         `json:"job_id"`
		Created      bool           `json:"created"`
		Deduplicated bool           `json:"deduplicated"`
		Status       focal.JobState `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "job-1", got.JobID)
	assert.True(t, got.Created)
	assert.False(t, got.Deduplicated)
	assert.Equal(t, focal.JobQueued, got.Status)
}

func TestServer_Refresh_DeduplicatesActiveJob(t *testing.T) {
	t.Parallel()

	s := focalhttp.NewServer()
	s.JobService = &mock.JobService{
		EnqueueFn: func(ctx context.Context, req focal.EnqueueRequest) (*focal.EnqueueResult, error) {
			return &focal.EnqueueResult{
				JobID:        "job-1",
				Created:      false,
				Deduplicated: true,
				Job:          &focal.Job{ID: "job-1", State: focal.JobRunning},
			}, nil
		},
	}
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/refresh", "application/json", strings.NewReader(`{"query": "zig"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var got struct {
		Created      bool           `json:"created"`
		Deduplicated bool           `json:"deduplicated"`
		Status       focal.JobState `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.False(t, got.Created)
	assert.True(t, got.Deduplicated)
	assert.Equal(t, focal.JobRunning, got.Status)
}

func TestServer_Refresh_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(focalhttp.NewServer())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/refresh", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, focal.EINVALID, decodeErrorCode(t, resp.Body))
}

func TestServer_Refresh_EmptyQuery(t *testing.T) {
	t.Parallel()

	s := focalhttp.NewServer()
	s.JobService = &mock.JobService{
		EnqueueFn: func(ctx context.Context, req focal.EnqueueRequest) (*focal.EnqueueResult, error) {
			return nil, focal.Errorf(focal.EINVALID, "query required")
		},
	}
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/refresh", "application/json", strings.NewReader(`{"query": ""}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_RefreshStatus(t *testing.T) {
	t.Parallel()

	t.Run("requires job_id or query", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(focalhttp.NewServer())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/refresh/status")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, focal.EINVALID, decodeErrorCode(t, resp.Body))
	})

	t.Run("passes job_id and query through", func(t *testing.T) {
		t.Parallel()

		var gotJobID, gotQuery string
		s := focalhttp.NewServer()
		s.JobService = &mock.JobService{
			StatusFn: func(ctx context.Context, jobID, query string) (*focal.JobStatus, error) {
				gotJobID, gotQuery = jobID, query
				return &focal.JobStatus{Job: &focal.Job{ID: "job-1", State: focal.JobDone}}, nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/refresh/status?job_id=job-1&query=zig+comptime")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "job-1", gotJobID)
		assert.Equal(t, "zig comptime", gotQuery)

		var got focal.JobStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.NotNil(t, got.Job)
		assert.Equal(t, focal.JobDone, got.Job.State)
	})
}

func TestServer_JobStatus(t *testing.T) {
	t.Parallel()

	t.Run("returns job snapshot", func(t *testing.T) {
		t.Parallel()

		s := focalhttp.NewServer()
		s.JobService = &mock.JobService{
			JobFn: func(ctx context.Context, id string) (*focal.Job, error) {
				require.Equal(t, "job-1", id)
				return &focal.Job{
					ID:       "job-1",
					State:    focal.JobRunning,
					Stage:    focal.StageCrawlStart,
					Progress: 30,
					Stats:    focal.JobStats{SeedCount: 12, PagesFetched: 4},
				}, nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/jobs/job-1/status")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got focal.Job
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, focal.JobRunning, got.State)
		assert.Equal(t, 30, got.Progress)
		assert.Equal(t, 4, got.Stats.PagesFetched)
	})

	t.Run("unknown job returns 404", func(t *testing.T) {
		t.Parallel()

		s := focalhttp.NewServer()
		s.JobService = &mock.JobService{
			JobFn: func(ctx context.Context, id string) (*focal.Job, error) {
				return nil, focal.Errorf(focal.ENOTFOUND, "job %q not found", id)
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/jobs/nope/status")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, focal.ENOTFOUND, decodeErrorCode(t, resp.Body))
	})
}

func TestServer_JobLog(t *testing.T) {
	t.Parallel()

	t.Run("streams log as plain text", func(t *testing.T) {
		t.Parallel()

		s := focalhttp.NewServer()
		s.JobService = &mock.JobService{
			JobFn: func(ctx context.Context, id string) (*focal.Job, error) {
				return &focal.Job{ID: id, State: focal.JobDone}, nil
			},
		}
		s.JobLogs = &mock.JobLogStore{
			OpenFn: func(jobID string) (io.ReadCloser, error) {
				require.Equal(t, "job-1", jobID)
				return io.NopCloser(strings.NewReader("frontier_start 12 seeds\ncrawl_start\n")), nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/jobs/job-1/log")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "frontier_start 12 seeds\ncrawl_start\n", string(body))
	})

	t.Run("job without log yields empty body", func(t *testing.T) {
		t.Parallel()

		s := focalhttp.NewServer()
		s.JobService = &mock.JobService{
			JobFn: func(ctx context.Context, id string) (*focal.Job, error) {
				return &focal.Job{ID: id, State: focal.JobQueued}, nil
			},
		}
		s.JobLogs = &mock.JobLogStore{
			OpenFn: func(jobID string) (io.ReadCloser, error) {
				return nil, focal.Errorf(focal.ENOTFOUND, "no log for job %q", jobID)
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/jobs/job-1/log")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Empty(t, body)
	})

	t.Run("unknown job returns 404", func(t *testing.T) {
		t.Parallel()

		s := focalhttp.NewServer()
		s.JobService = &mock.JobService{
			JobFn: func(ctx context.Context, id string) (*focal.Job, error) {
				return nil, focal.Errorf(focal.ENOTFOUND, "job %q not found", id)
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/jobs/nope/log")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestServer_JobStream(t *testing.T) {
	t.Parallel()

	t.Run("emits stage events until terminal", func(t *testing.T) {
		t.Parallel()

		events := make(chan focal.StageEvent, 4)
		var cancelled atomic.Bool

		s := focalhttp.NewServer()
		s.JobService = &mock.JobService{
			SubscribeFn: func(id string) (<-chan focal.StageEvent, func(), error) {
				require.Equal(t, "job-1", id)
				return events, func() { cancelled.Store(true) }, nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		events <- focal.StageEvent{JobID: "job-1", Stage: focal.StageCrawlStart, Progress: 30}
		events <- focal.StageEvent{JobID: "job-1", Stage: focal.StageIndexComplete, Progress: 95}
		events <- focal.StageEvent{JobID: "job-1", Stage: "done", Progress: 100, Terminal: true}

		resp, err := http.Get(srv.URL + "/jobs/job-1/progress/stream")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
		assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

		// The terminal event ends the handler, so the body reads to EOF.
		got := readStageEvents(t, resp.Body)
		require.Len(t, got, 3)
		assert.Equal(t, focal.StageCrawlStart, got[0].Stage)
		assert.Equal(t, 30, got[0].Progress)
		assert.Equal(t, focal.StageIndexComplete, got[1].Stage)
		assert.True(t, got[2].Terminal)
		assert.Equal(t, 100, got[2].Progress)

		require.Eventually(t, cancelled.Load, time.Second, 10*time.Millisecond,
			"subscription should be cancelled when the stream ends")
	})

	t.Run("closed channel ends the stream", func(t *testing.T) {
		t.Parallel()

		events := make(chan focal.StageEvent)
		close(events)

		s := focalhttp.NewServer()
		s.JobService = &mock.JobService{
			SubscribeFn: func(id string) (<-chan focal.StageEvent, func(), error) {
				return events, func() {}, nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/jobs/job-1/progress/stream")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Empty(t, body)
	})

	t.Run("unknown job returns 404", func(t *testing.T) {
		t.Parallel()

		s := focalhttp.NewServer()
		s.JobService = &mock.JobService{
			SubscribeFn: func(id string) (<-chan focal.StageEvent, func(), error) {
				return nil, nil, focal.Errorf(focal.ENOTFOUND, "job %q not found", id)
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/jobs/nope/progress/stream")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestServer_Search(t *testing.T) {
	t.Parallel()

	t.Run("requires q", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(focalhttp.NewServer())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/search")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, focal.EINVALID, decodeErrorCode(t, resp.Body))
	})

	t.Run("defaults to llm off and service limit", func(t *testing.T) {
		t.Parallel()

		var gotOpts focal.SearchOptions
		s := focalhttp.NewServer()
		s.SearchService = &mock.SearchService{
			SearchFn: func(ctx context.Context, query string, opts focal.SearchOptions) (*focal.SearchResponse, error) {
				gotOpts = opts
				return &focal.SearchResponse{Status: focal.SearchOK, Results: []focal.SearchResult{}}, nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/search?q=zig")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.False(t, gotOpts.UseLLM)
		assert.Zero(t, gotOpts.Limit)
	})

	t.Run("llm=on enables discovery llm", func(t *testing.T) {
		t.Parallel()

		var gotQuery string
		var gotOpts focal.SearchOptions
		s := focalhttp.NewServer()
		s.SearchService = &mock.SearchService{
			SearchFn: func(ctx context.Context, query string, opts focal.SearchOptions) (*focal.SearchResponse, error) {
				gotQuery, gotOpts = query, opts
				return &focal.SearchResponse{Status: focal.SearchOK}, nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/search?q=zig+comptime&llm=on&limit=3&model=gemini-2.5-flash")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "zig comptime", gotQuery)
		assert.True(t, gotOpts.UseLLM)
		assert.Equal(t, 3, gotOpts.Limit)
		assert.Equal(t, "gemini-2.5-flash", gotOpts.Model)
	})

	t.Run("rejects non-positive limit", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(focalhttp.NewServer())
		defer srv.Close()

		for _, raw := range []string{"abc", "0", "-2"} {
			resp, err := http.Get(srv.URL + "/search?q=zig&limit=" + raw)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", raw)
			resp.Body.Close()
		}
	})

	t.Run("returns response body", func(t *testing.T) {
		t.Parallel()

		s := focalhttp.NewServer()
		s.SearchService = &mock.SearchService{
			SearchFn: func(ctx context.Context, query string, opts focal.SearchOptions) (*focal.SearchResponse, error) {
				return &focal.SearchResponse{
					Status:     focal.SearchCrawlRunning,
					JobID:      "job-9",
					Confidence: 0.42,
					Results: []focal.SearchResult{
						{URL: "https://ziglang.org/documentation", Title: "Zig docs", BlendedScore: 0.8, MatchReason: focal.MatchBoth},
					},
				}, nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/search?q=zig")
		require.NoError(t, err)
		defer resp.Body.Close()

		var got focal.SearchResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, focal.SearchCrawlRunning, got.Status)
		assert.Equal(t, "job-9", got.JobID)
		require.Len(t, got.Results, 1)
		assert.Equal(t, focal.MatchBoth, got.Results[0].MatchReason)
	})
}

func TestServer_IndexSearch(t *testing.T) {
	t.Parallel()

	t.Run("defaults k to 5", func(t *testing.T) {
		t.Parallel()

		var gotK int
		var gotFilters map[string]string
		s := focalhttp.NewServer()
		s.VectorStore = &mock.VectorStore{
			SearchFn: func(ctx context.Context, query string, k int, filters map[string]string) ([]focal.VectorHit, error) {
				gotK, gotFilters = k, filters
				return []focal.VectorHit{{URL: "https://a.example", Title: "A", Score: 0.9}}, nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		body := `{"query": "zig", "filters": {"domain": "ziglang.org"}}`
		resp, err := http.Post(srv.URL+"/index/search", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 5, gotK)
		assert.Equal(t, map[string]string{"domain": "ziglang.org"}, gotFilters)
	})

	t.Run("no hits encodes empty array", func(t *testing.T) {
		t.Parallel()

		s := focalhttp.NewServer()
		s.VectorStore = &mock.VectorStore{
			SearchFn: func(ctx context.Context, query string, k int, filters map[string]string) ([]focal.VectorHit, error) {
				return nil, nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/index/search", "application/json", strings.NewReader(`{"query": "zig", "k": 3}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"results": []}`, string(body))
	})

	t.Run("invalid JSON returns 400", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(focalhttp.NewServer())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/index/search", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_IndexUpsert(t *testing.T) {
	t.Parallel()

	t.Run("upserts document", func(t *testing.T) {
		t.Parallel()

		s := focalhttp.NewServer()
		s.VectorStore = &mock.VectorStore{
			UpsertDocumentFn: func(ctx context.Context, req focal.UpsertRequest) (*focal.UpsertResult, error) {
				assert.Equal(t, "Comptime is Zig's metaprogramming story.", req.Text)
				assert.Equal(t, "https://ziglang.org/documentation", req.URL)
				return &focal.UpsertResult{DocID: "doc-1", Chunks: 1, Dims: 768}, nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		body := `{"text": "Comptime is Zig's metaprogramming story.", "url": "https://ziglang.org/documentation"}`
		resp, err := http.Post(srv.URL+"/index/upsert", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got focal.UpsertResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "doc-1", got.DocID)
		assert.Equal(t, 768, got.Dims)
	})

	t.Run("queued upsert is still a 200", func(t *testing.T) {
		t.Parallel()

		// Embedder down parks the document in the pending queue; that is a
		// success from the client's point of view, not a 503.
		s := focalhttp.NewServer()
		s.VectorStore = &mock.VectorStore{
			UpsertDocumentFn: func(ctx context.Context, req focal.UpsertRequest) (*focal.UpsertResult, error) {
				return &focal.UpsertResult{DocID: "doc-1", Queued: true}, nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/index/upsert", "application/json", strings.NewReader(`{"text": "hello"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got focal.UpsertResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.True(t, got.Queued)
	})
}

func TestServer_EmbedderStatus(t *testing.T) {
	t.Parallel()

	s := focalhttp.NewServer()
	s.Embedder = &mock.Embedder{
		StatusFn: func(ctx context.Context) focal.EmbedderStatus {
			return focal.EmbedderStatus{State: focal.EmbedderReady, Model: "embeddinggemma"}
		},
	}
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/embedder/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got focal.EmbedderStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, focal.EmbedderReady, got.State)
	assert.Equal(t, "embeddinggemma", got.Model)
}

func TestServer_EmbedderEnsure(t *testing.T) {
	t.Parallel()

	t.Run("empty body ensures default model", func(t *testing.T) {
		t.Parallel()

		var gotModel string
		s := focalhttp.NewServer()
		s.Embedder = &mock.Embedder{
			EnsureFn: func(ctx context.Context, model string) (focal.EmbedderStatus, error) {
				gotModel = model
				return focal.EmbedderStatus{State: focal.EmbedderWarming, Model: "embeddinggemma"}, nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/embedder/ensure", "application/json", http.NoBody)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, gotModel)

		var got focal.EmbedderStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, focal.EmbedderWarming, got.State)
	})

	t.Run("passes model through", func(t *testing.T) {
		t.Parallel()

		var gotModel string
		s := focalhttp.NewServer()
		s.Embedder = &mock.Embedder{
			EnsureFn: func(ctx context.Context, model string) (focal.EmbedderStatus, error) {
				gotModel = model
				return focal.EmbedderStatus{State: focal.EmbedderReady, Model: model}, nil
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/embedder/ensure", "application/json", strings.NewReader(`{"model": "nomic-embed-text"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "nomic-embed-text", gotModel)
	})

	t.Run("unavailable host returns 503", func(t *testing.T) {
		t.Parallel()

		s := focalhttp.NewServer()
		s.Embedder = &mock.Embedder{
			EnsureFn: func(ctx context.Context, model string) (focal.EmbedderStatus, error) {
				return focal.EmbedderStatus{}, &focal.EmbedderUnavailableError{Model: "embeddinggemma", Detail: "connection refused"}
			},
		}
		srv := httptest.NewServer(s)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/embedder/ensure", "application/json", http.NoBody)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestServer_InternalErrorHidesDetails(t *testing.T) {
	t.Parallel()

	s := focalhttp.NewServer()
	s.SearchService = &mock.SearchService{
		SearchFn: func(ctx context.Context, query string, opts focal.SearchOptions) (*focal.SearchResponse, error) {
			return nil, focal.Errorf(focal.EINTERNAL, "bleve index corrupted at segment 4")
		},
	}
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/search?q=zig")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var got focalhttp.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.NotContains(t, got.Error, "bleve")
	assert.Equal(t, focal.EINTERNAL, got.Code)
}

func TestErrorStatusCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadRequest, focalhttp.ErrorStatusCode(focal.EINVALID))
	assert.Equal(t, http.StatusNotFound, focalhttp.ErrorStatusCode(focal.ENOTFOUND))
	assert.Equal(t, http.StatusServiceUnavailable, focalhttp.ErrorStatusCode(focal.EUNAVAILABLE))
	assert.Equal(t, http.StatusInternalServerError, focalhttp.ErrorStatusCode(focal.EINTERNAL))
	assert.Equal(t, http.StatusInternalServerError, focalhttp.ErrorStatusCode("bogus"))
}

// decodeErrorCode reads an ErrorResponse body and returns its code.
func decodeErrorCode(t *testing.T, r io.Reader) string {
	t.Helper()
	var body focalhttp.ErrorResponse
	require.NoError(t, json.NewDecoder(r).Decode(&body))
	return body.Code
}

// readStageEvents parses an SSE stream into its stage event payloads.
func readStageEvents(t *testing.T, r io.Reader) []focal.StageEvent {
	t.Helper()

	var events []focal.StageEvent
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev focal.StageEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}
