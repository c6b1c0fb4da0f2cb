package focal

import "context"

// EmbedderState describes the readiness of the embedding model host.
type EmbedderState string

// Embedder states.
const (
	EmbedderUnknown EmbedderState = "unknown"
	EmbedderWarming EmbedderState = "warming"
	EmbedderReady   EmbedderState = "ready"
	EmbedderError   EmbedderState = "error"
)

// EmbedderStatus is the reported health of the embedding model host.
type EmbedderStatus struct {
	State    EmbedderState `json:"state"`
	Model    string        `json:"model"`
	Progress float64       `json:"progress,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}

// Embedder turns chunk texts into vectors via a local model host.
type Embedder interface {
	// Embed returns one vector per input text, all with equal dimension.
	// Returns an EmbedderUnavailableError when the model host or the
	// configured model cannot serve.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Status reports the current availability of the configured model.
	Status(ctx context.Context) EmbedderStatus

	// Ensure checks that a model is available, optionally triggering a
	// background pull, and reports the resulting state. An empty model
	// means the configured default.
	Ensure(ctx context.Context, model string) (EmbedderStatus, error)
}
