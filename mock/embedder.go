package mock

import (
	"context"

	"github.com/usefocal/focal"
)

var _ focal.Embedder = (*Embedder)(nil)

// Embedder is a mock implementation of focal.Embedder.
type Embedder struct {
	EmbedFn  func(ctx context.Context, texts []string) ([][]float32, error)
	StatusFn func(ctx context.Context) focal.EmbedderStatus
	EnsureFn func(ctx context.Context, model string) (focal.EmbedderStatus, error)
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.EmbedFn(ctx, texts)
}

func (e *Embedder) Status(ctx context.Context) focal.EmbedderStatus {
	return e.StatusFn(ctx)
}

func (e *Embedder) Ensure(ctx context.Context, model string) (focal.EmbedderStatus, error) {
	return e.EnsureFn(ctx, model)
}
