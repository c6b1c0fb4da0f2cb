// Package ollama implements the embedder against a local Ollama-compatible
// model host: availability via the tag list, embeddings per prompt, and
// optional background model pulls.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/usefocal/focal"
)

// Defaults for a stock local model host.
const (
	DefaultHost    = "http://localhost:11434"
	DefaultModel   = "nomic-embed-text"
	DefaultTimeout = 30 * time.Second
)

// Ensure Embedder implements focal.Embedder at compile time.
var _ focal.Embedder = (*Embedder)(nil)

// Embedder talks to an Ollama model host. Embedding requests are
// serialized; the llama runner is unreliable under concurrent embedding
// load.
type Embedder struct {
	client   *http.Client
	host     string
	model    string
	autopull bool
	timeout  time.Duration
	logger   zerolog.Logger

	embedMu sync.Mutex

	pullMu sync.Mutex
	pulls  map[string]*pullState
}

type pullState struct {
	inFlight bool
	progress float64
	err      error
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithHost sets the model host base URL. Defaults to DefaultHost.
func WithHost(host string) Option {
	return func(e *Embedder) {
		e.host = strings.TrimSuffix(host, "/")
	}
}

// WithModel sets the embedding model. Defaults to DefaultModel.
func WithModel(model string) Option {
	return func(e *Embedder) {
		e.model = model
	}
}

// WithAutopull lets Embed trigger one background model pull when the
// configured model is missing from the host. Intended for development
// setups; production hosts should pull models explicitly.
func WithAutopull(enabled bool) Option {
	return func(e *Embedder) {
		e.autopull = enabled
	}
}

// WithTimeout sets the per-request timeout. Defaults to DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Embedder) {
		e.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Embedder) {
		e.logger = logger
	}
}

// NewEmbedder creates an Embedder for a local model host.
func NewEmbedder(opts ...Option) *Embedder {
	e := &Embedder{
		host:    DefaultHost,
		model:   DefaultModel,
		timeout: DefaultTimeout,
		logger:  zerolog.Nop(),
		pulls:   make(map[string]*pullState),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.client = &http.Client{Timeout: e.timeout}
	return e
}

// Embed returns one vector per input text. The model's availability is
// checked against the host's tag list first; a missing model or an
// unreachable host yields an EmbedderUnavailableError so callers can park
// the work instead of failing it.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.checkModel(ctx, e.model, e.autopull); err != nil {
		return nil, err
	}

	e.embedMu.Lock()
	defer e.embedMu.Unlock()

	vectors := make([][]float32, 0, len(texts))
	dims := 0
	for _, text := range texts {
		vec, err := e.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		if dims == 0 {
			dims = len(vec)
		} else if len(vec) != dims {
			return nil, focal.Errorf(focal.EINTERNAL, "model %s returned %d dims after %d", e.model, len(vec), dims)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (e *Embedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}{Model: e.model, Prompt: text})
	if err != nil {
		return nil, focal.Errorf(focal.EINTERNAL, "marshal embedding request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, focal.Errorf(focal.EINVALID, "build embedding request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &focal.EmbedderUnavailableError{Model: e.model, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := fmt.Sprintf("host returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return nil, &focal.EmbedderUnavailableError{Model: e.model, Detail: detail}
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, focal.Errorf(focal.EINTERNAL, "decode embedding response: %v", err)
	}
	if len(out.Embedding) == 0 {
		return nil, focal.Errorf(focal.EINTERNAL, "model %s returned an empty embedding", e.model)
	}
	return out.Embedding, nil
}

// Status reports the live availability of the configured model.
func (e *Embedder) Status(ctx context.Context) focal.EmbedderStatus {
	names, err := e.listModels(ctx)
	if err != nil {
		return focal.EmbedderStatus{State: focal.EmbedderError, Model: e.model, Detail: err.Error()}
	}
	if hasModel(names, e.model) {
		return focal.EmbedderStatus{State: focal.EmbedderReady, Model: e.model}
	}
	if progress, pulling := e.pullProgress(e.model); pulling {
		return focal.EmbedderStatus{State: focal.EmbedderWarming, Model: e.model, Progress: progress}
	}
	return focal.EmbedderStatus{State: focal.EmbedderError, Model: e.model, Detail: "model not available on host"}
}

// Ensure checks that a model is available and starts a background pull
// when it is not. An empty model means the configured default.
func (e *Embedder) Ensure(ctx context.Context, model string) (focal.EmbedderStatus, error) {
	if model == "" {
		model = e.model
	}

	names, err := e.listModels(ctx)
	if err != nil {
		return focal.EmbedderStatus{State: focal.EmbedderError, Model: model, Detail: err.Error()}, nil
	}
	if hasModel(names, model) {
		return focal.EmbedderStatus{State: focal.EmbedderReady, Model: model}, nil
	}

	e.startPull(model)
	progress, _ := e.pullProgress(model)
	return focal.EmbedderStatus{State: focal.EmbedderWarming, Model: model, Progress: progress}, nil
}

// checkModel verifies the model is served by the host. When it is missing
// and autopull is requested, one background pull is started; the call
// still fails so the caller queues instead of waiting.
func (e *Embedder) checkModel(ctx context.Context, model string, autopull bool) error {
	names, err := e.listModels(ctx)
	if err != nil {
		return &focal.EmbedderUnavailableError{Model: model, Detail: err.Error()}
	}
	if hasModel(names, model) {
		return nil
	}

	started := false
	if autopull {
		started = e.startPull(model)
	}
	return &focal.EmbedderUnavailableError{
		Model:           model,
		Detail:          "model not available on host",
		AutopullStarted: started,
	}
}

func (e *Embedder) listModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("host returned %d for tag list", resp.StatusCode)
	}

	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tag list: %w", err)
	}

	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// hasModel matches a configured model name against tag-list names, which
// usually carry an explicit ":latest" suffix.
func hasModel(names []string, model string) bool {
	for _, name := range names {
		if name == model || name == model+":latest" || strings.TrimSuffix(name, ":latest") == model {
			return true
		}
	}
	return false
}

// startPull begins one background pull for the model. Reports whether this
// call started it; a pull already in flight is left alone.
func (e *Embedder) startPull(model string) bool {
	e.pullMu.Lock()
	defer e.pullMu.Unlock()

	state := e.pulls[model]
	if state != nil && state.inFlight {
		return false
	}
	state = &pullState{inFlight: true}
	e.pulls[model] = state

	e.logger.Info().Str("model", model).Msg("starting background model pull")
	go e.runPull(model, state)
	return true
}

// runPull streams the pull response and tracks progress. The pull outlives
// the request that triggered it, so it runs on a background context.
func (e *Embedder) runPull(model string, state *pullState) {
	err := e.streamPull(model, state)

	e.pullMu.Lock()
	defer e.pullMu.Unlock()
	state.inFlight = false
	state.err = err
	if err != nil {
		e.logger.Error().Err(err).Str("model", model).Msg("model pull failed")
		return
	}
	e.logger.Info().Str("model", model).Msg("model pull complete")
}

func (e *Embedder) streamPull(model string, state *pullState) error {
	payload, err := json.Marshal(struct {
		Name string `json:"name"`
	}{Name: model})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, e.host+"/api/pull", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// Pulls run far longer than embedding requests.
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("host returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var line struct {
			Status    string `json:"status"`
			Total     int64  `json:"total"`
			Completed int64  `json:"completed"`
			Error     string `json:"error"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Error != "" {
			return fmt.Errorf("pull: %s", line.Error)
		}
		if line.Total > 0 {
			e.pullMu.Lock()
			state.progress = 100 * float64(line.Completed) / float64(line.Total)
			e.pullMu.Unlock()
		}
	}
	return scanner.Err()
}

func (e *Embedder) pullProgress(model string) (float64, bool) {
	e.pullMu.Lock()
	defer e.pullMu.Unlock()
	state := e.pulls[model]
	if state == nil || !state.inFlight {
		return 0, false
	}
	return state.progress, true
}
