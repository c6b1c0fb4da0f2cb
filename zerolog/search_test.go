package zerolog_test

import (
	"bytes"
	"context"
	"testing"

	rz "github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usefocal/focal"
	"github.com/usefocal/focal/mock"
	"github.com/usefocal/focal/zerolog"
)

func TestLoggingSearchService(t *testing.T) {
	t.Parallel()

	t.Run("LogsOutcome", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := rz.New(&buf)

		next := &mock.SearchService{
			SearchFn: func(ctx context.Context, query string, opts focal.SearchOptions) (*focal.SearchResponse, error) {
				return &focal.SearchResponse{
					Status:     focal.SearchOK,
					Results:    []focal.SearchResult{{URL: "https://example.com"}},
					Confidence: 0.9,
				}, nil
			},
		}

		s := zerolog.NewLoggingSearchService(next, logger)
		resp, err := s.Search(context.Background(), "example query", focal.SearchOptions{})
		require.NoError(t, err)
		assert.Equal(t, focal.SearchOK, resp.Status)

		out := buf.String()
		assert.Contains(t, out, `"query":"example query"`)
		assert.Contains(t, out, `"status":"ok"`)
		assert.Contains(t, out, `"results":1`)
		assert.Contains(t, out, "hybrid search")
	})

	t.Run("LogsError", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := rz.New(&buf)

		next := &mock.SearchService{
			SearchFn: func(ctx context.Context, query string, opts focal.SearchOptions) (*focal.SearchResponse, error) {
				return nil, focal.Errorf(focal.EINVALID, "search query required")
			},
		}

		s := zerolog.NewLoggingSearchService(next, logger)
		_, err := s.Search(context.Background(), "", focal.SearchOptions{})
		require.Error(t, err)

		out := buf.String()
		assert.Contains(t, out, `"level":"error"`)
		assert.Contains(t, out, "search query required")
	})
}
