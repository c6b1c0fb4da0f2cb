package crawl

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/usefocal/focal"
)

var _ focal.JobService = (*Engine)(nil)

// Engine defaults.
const (
	DefaultCooldown = 15 * time.Minute

	historySize         = 20
	queueCapacity       = 256
	subscriberQueueSize = 512
)

// Runner executes one focused crawl. *Pipeline is the production
// implementation.
type Runner interface {
	Run(ctx context.Context, params RunParams) (focal.JobStats, error)
}

// Engine is the focused-crawl job service: it deduplicates enqueues per
// normalized query, enforces the per-query cooldown, drains jobs with a
// single worker goroutine and fans stage events out to subscribers.
type Engine struct {
	runner   Runner
	store    focal.JobStore
	logs     focal.JobLogStore
	cooldown time.Duration
	budget   int
	logger   zerolog.Logger

	mu     sync.Mutex
	active map[string]*focal.Job // normalized query -> non-terminal job
	jobs   map[string]*focal.Job // id -> every job the engine still tracks
	recent []*focal.Job          // terminal jobs, newest first, bounded
	seeds  map[string][]string   // id -> manual seeds, consumed at run
	subs   map[string][]chan focal.StageEvent
	closed bool

	queue chan string
	done  chan struct{}
	wg    sync.WaitGroup
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCooldown sets the minimum spacing between successful runs of the
// same normalized query.
func WithCooldown(d time.Duration) EngineOption {
	return func(e *Engine) { e.cooldown = d }
}

// WithBudget sets the page budget handed to each crawl.
func WithBudget(n int) EngineOption {
	return func(e *Engine) { e.budget = n }
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a job engine. Call Open to start the worker.
func NewEngine(runner Runner, store focal.JobStore, logs focal.JobLogStore, opts ...EngineOption) *Engine {
	e := &Engine{
		runner:   runner,
		store:    store,
		logs:     logs,
		cooldown: DefaultCooldown,
		budget:   DefaultCrawlBudget,
		logger:   zerolog.Nop(),
		active:   make(map[string]*focal.Job),
		jobs:     make(map[string]*focal.Job),
		seeds:    make(map[string][]string),
		subs:     make(map[string][]chan focal.StageEvent),
		queue:    make(chan string, queueCapacity),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open loads recent jobs from the store and starts the worker. Jobs left
// non-terminal by a previous process are marked failed so their queries
// can be enqueued again.
func (e *Engine) Open() error {
	ctx := context.Background()
	loaded, err := e.store.RecentJobs(ctx, historySize)
	if err != nil {
		return err
	}

	e.mu.Lock()
	for _, job := range loaded {
		if !job.Terminal() {
			now := time.Now().UTC()
			job.State = focal.JobError
			job.Error = "interrupted by restart"
			job.CompletedAt = &now
			job.UpdatedAt = now
			if err := e.store.SaveJob(ctx, job); err != nil {
				e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("marking interrupted job failed")
			}
		}
		e.jobs[job.ID] = job
		e.recent = append(e.recent, job)
	}
	e.mu.Unlock()

	e.wg.Add(1)
	go e.worker()
	return nil
}

// Close stops accepting jobs, lets any running job finish and releases
// all subscribers.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.done)
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, chans := range e.subs {
		for _, ch := range chans {
			close(ch)
		}
		delete(e.subs, id)
	}
	return nil
}

// Enqueue submits a query for a focused crawl. An active job for the same
// normalized query is returned instead of a new one, and a query whose
// last successful run is still inside the cooldown window gets that run
// back with Created false.
func (e *Engine) Enqueue(ctx context.Context, req focal.EnqueueRequest) (*focal.EnqueueResult, error) {
	norm := focal.NormalizeQuery(req.Query)
	if norm == "" {
		return nil, focal.Errorf(focal.EINVALID, "query required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, focal.Errorf(focal.EUNAVAILABLE, "job engine is shut down")
	}
	if job, ok := e.active[norm]; ok {
		return &focal.EnqueueResult{JobID: job.ID, Created: false, Deduplicated: true, Job: job.Clone()}, nil
	}
	if e.cooldown > 0 {
		last, err := e.store.LastDoneJob(ctx, norm)
		if err == nil && last.CompletedAt != nil && time.Since(*last.CompletedAt) < e.cooldown {
			return &focal.EnqueueResult{JobID: last.ID, Created: false, Job: last}, nil
		}
		if err != nil && focal.ErrorCode(err) != focal.ENOTFOUND {
			e.logger.Warn().Err(err).Str("query", norm).Msg("cooldown lookup failed")
		}
	}
	if len(e.queue) == cap(e.queue) {
		return nil, focal.Errorf(focal.EUNAVAILABLE, "job queue is full")
	}

	now := time.Now().UTC()
	job := &focal.Job{
		ID:              uuid.NewString(),
		NormalizedQuery: norm,
		DisplayQuery:    strings.TrimSpace(req.Query),
		State:           focal.JobQueued,
		UseLLM:          req.UseLLM,
		Model:           req.Model,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.SaveJob(ctx, job); err != nil {
		return nil, err
	}

	e.active[norm] = job
	e.jobs[job.ID] = job
	if len(req.ManualSeeds) > 0 {
		e.seeds[job.ID] = req.ManualSeeds
	}
	e.queue <- job.ID

	e.logger.Info().Str("job_id", job.ID).Str("query", norm).Msg("job enqueued")
	return &focal.EnqueueResult{JobID: job.ID, Created: true, Job: job.Clone()}, nil
}

// Job returns a snapshot of a job, falling back to the store for jobs
// evicted from the in-memory history.
func (e *Engine) Job(ctx context.Context, id string) (*focal.Job, error) {
	e.mu.Lock()
	if job, ok := e.jobs[id]; ok {
		defer e.mu.Unlock()
		return job.Clone(), nil
	}
	e.mu.Unlock()
	return e.store.FindJob(ctx, id)
}

// Status resolves a job by id or query and lists active and recent jobs.
// An unknown id is ENOTFOUND; an unknown query just leaves Job unset.
func (e *Engine) Status(ctx context.Context, jobID, query string) (*focal.JobStatus, error) {
	if jobID == "" && query == "" {
		return nil, focal.Errorf(focal.EINVALID, "job id or query required")
	}

	status := &focal.JobStatus{}
	norm := focal.NormalizeQuery(query)

	e.mu.Lock()
	for _, job := range e.active {
		status.Active = append(status.Active, job.Clone())
	}
	sort.Slice(status.Active, func(i, j int) bool {
		return status.Active[i].CreatedAt.After(status.Active[j].CreatedAt)
	})
	for _, job := range e.recent {
		status.Recent = append(status.Recent, job.Clone())
	}

	switch {
	case jobID != "":
		if job, ok := e.jobs[jobID]; ok {
			status.Job = job.Clone()
		}
	case norm != "":
		if job, ok := e.active[norm]; ok {
			status.Job = job.Clone()
		} else {
			for _, job := range e.recent {
				if job.NormalizedQuery == norm {
					status.Job = job.Clone()
					break
				}
			}
		}
	}
	e.mu.Unlock()

	if status.Job == nil && jobID != "" {
		job, err := e.store.FindJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		status.Job = job
	}
	if status.Job == nil && norm != "" {
		if job, err := e.store.LastDoneJob(ctx, norm); err == nil {
			status.Job = job
		}
	}
	return status, nil
}

// Subscribe returns a buffered stage-event channel for a job. Events for
// a job already finished arrive as a single terminal snapshot. The
// channel closes after the terminal event; cancel detaches early.
func (e *Engine) Subscribe(id string) (<-chan focal.StageEvent, func(), error) {
	e.mu.Lock()
	job, ok := e.jobs[id]
	if ok && !job.Terminal() {
		ch := make(chan focal.StageEvent, subscriberQueueSize)
		ch <- snapshotEvent(job, time.Now().UTC())
		e.subs[id] = append(e.subs[id], ch)
		e.mu.Unlock()

		cancel := func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			chans := e.subs[id]
			for i, c := range chans {
				if c == ch {
					e.subs[id] = append(chans[:i], chans[i+1:]...)
					close(c)
					return
				}
			}
		}
		return ch, cancel, nil
	}
	e.mu.Unlock()

	if !ok {
		var err error
		job, err = e.store.FindJob(context.Background(), id)
		if err != nil {
			return nil, nil, err
		}
	}
	ch := make(chan focal.StageEvent, 1)
	ch <- snapshotEvent(job, time.Now().UTC())
	close(ch)
	return ch, func() {}, nil
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case id := <-e.queue:
			e.run(id)
		}
	}
}

func (e *Engine) run(id string) {
	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok || job.Terminal() {
		e.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	job.State = focal.JobRunning
	job.StartedAt = &now
	job.UpdatedAt = now
	params := RunParams{
		JobID:       id,
		Query:       job.NormalizedQuery,
		Budget:      e.budget,
		UseLLM:      job.UseLLM,
		Model:       job.Model,
		ManualSeeds: e.seeds[id],
		Progress: func(stage, message string, stats focal.JobStats) {
			e.applyProgress(id, stage, message, stats)
		},
	}
	delete(e.seeds, id)
	clone := job.Clone()
	e.mu.Unlock()

	e.saveJob(clone)
	e.logger.Info().Str("job_id", id).Str("query", clone.NormalizedQuery).Msg("job started")

	stats, err := e.runner.Run(context.Background(), params)
	e.complete(id, stats, err)
}

// applyProgress folds a stage event into the job record. Progress only
// moves forward and terminal jobs ignore everything.
func (e *Engine) applyProgress(id, stage, message string, stats focal.JobStats) {
	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok || job.Terminal() {
		e.mu.Unlock()
		return
	}
	stageChanged := stage != job.Stage
	job.Stage = stage
	job.Message = message
	if p, ok := focal.StageProgress[stage]; ok && p > job.Progress {
		job.Progress = p
	}
	job.Stats.Merge(stats)
	now := time.Now().UTC()
	job.UpdatedAt = now

	ev := snapshotEvent(job, now)
	e.publishLocked(id, ev)
	var clone *focal.Job
	if stageChanged {
		clone = job.Clone()
	}
	e.mu.Unlock()

	e.appendLog(id, ev)
	if clone != nil {
		e.saveJob(clone)
	}
}

func (e *Engine) complete(id string, stats focal.JobStats, runErr error) {
	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok || job.Terminal() {
		e.mu.Unlock()
		return
	}
	job.Stats.Merge(stats)
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.UpdatedAt = now
	if runErr != nil {
		job.State = focal.JobError
		job.Error = runErr.Error()
		job.Message = job.Error
	} else {
		job.State = focal.JobDone
		job.Progress = 100
		job.Result = fmt.Sprintf("indexed %d documents from %d pages", job.Stats.DocsIndexed, job.Stats.PagesFetched)
		job.Message = job.Result
	}

	delete(e.active, job.NormalizedQuery)
	e.recent = append([]*focal.Job{job}, e.recent...)
	for _, evicted := range e.recent[min(len(e.recent), historySize):] {
		delete(e.jobs, evicted.ID)
	}
	if len(e.recent) > historySize {
		e.recent = e.recent[:historySize]
	}

	ev := snapshotEvent(job, now)
	e.publishLocked(id, ev)
	for _, ch := range e.subs[id] {
		close(ch)
	}
	delete(e.subs, id)
	clone := job.Clone()
	e.mu.Unlock()

	e.appendLog(id, ev)
	e.saveJob(clone)
	if runErr != nil {
		e.logger.Error().Err(runErr).Str("job_id", id).Str("query", clone.NormalizedQuery).Msg("job failed")
	} else {
		e.logger.Info().Str("job_id", id).Str("query", clone.NormalizedQuery).
			Int("pages", clone.Stats.PagesFetched).Int("indexed", clone.Stats.DocsIndexed).Msg("job done")
	}
}

// publishLocked fans an event out without ever blocking the publisher: a
// full subscriber queue loses its oldest event to make room, and a queue
// that is still full after that drops the new event.
func (e *Engine) publishLocked(id string, ev focal.StageEvent) {
	for _, ch := range e.subs[id] {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *Engine) appendLog(id string, ev focal.StageEvent) {
	if e.logs == nil {
		return
	}
	line := fmt.Sprintf("%s %s [%d%%] %s", time.Now().UTC().Format(time.RFC3339), ev.Stage, ev.Progress, ev.Message)
	if err := e.logs.Append(id, line); err != nil {
		e.logger.Warn().Err(err).Str("job_id", id).Msg("appending job log failed")
	}
}

func (e *Engine) saveJob(job *focal.Job) {
	if err := e.store.SaveJob(context.Background(), job); err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("persisting job failed")
	}
}

// snapshotEvent renders the job's current state as a stage event.
func snapshotEvent(job *focal.Job, now time.Time) focal.StageEvent {
	stage := job.Stage
	if stage == "" {
		stage = string(job.State)
	}
	eta, _ := job.ETASeconds(now)
	return focal.StageEvent{
		JobID:      job.ID,
		Stage:      stage,
		Message:    job.Message,
		Progress:   job.Progress,
		ETASeconds: eta,
		Stats:      job.Stats,
		Terminal:   job.Terminal(),
	}
}
