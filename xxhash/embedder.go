// Package xxhash implements a deterministic embedder that hashes tokens
// into a fixed-dimension bag. It stands in for the model host in test
// mode, where search behavior must be reproducible without a network.
package xxhash

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/usefocal/focal"
)

const (
	// Dims is the fixed embedding dimension.
	Dims = 128

	// Model is the reported model name.
	Model = "hash-bag-128"
)

// Ensure Embedder implements focal.Embedder at compile time.
var _ focal.Embedder = (*Embedder)(nil)

// Embedder maps each token to a dimension by hash and counts occurrences,
// then L2-normalizes. Texts sharing tokens land near each other under
// cosine similarity; identical texts embed identically.
type Embedder struct{}

// NewEmbedder creates a deterministic hash-bag embedder.
func NewEmbedder() *Embedder {
	return &Embedder{}
}

// Embed returns one vector per input text.
func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashBag(text)
	}
	return vectors, nil
}

// Status always reports ready; there is nothing to warm up.
func (e *Embedder) Status(context.Context) focal.EmbedderStatus {
	return focal.EmbedderStatus{State: focal.EmbedderReady, Model: Model}
}

// Ensure reports ready for any model name; no pull is ever needed.
func (e *Embedder) Ensure(_ context.Context, model string) (focal.EmbedderStatus, error) {
	if model == "" {
		model = Model
	}
	return focal.EmbedderStatus{State: focal.EmbedderReady, Model: model}, nil
}

func hashBag(text string) []float32 {
	vec := make([]float32, Dims)
	for _, tok := range focal.Tokenize(text) {
		vec[xxhash.Sum64String(tok)%Dims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
