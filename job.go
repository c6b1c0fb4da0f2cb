package focal

import (
	"context"
	"strings"
	"time"
)

// JobState is the lifecycle state of a focused-crawl job.
type JobState string

// Job states. Transitions are queued -> running -> done|error; done and
// error are terminal.
const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobError   JobState = "error"
)

// Pipeline stage names in emission order.
const (
	StageStarting          = "starting"
	StageFrontierStart     = "frontier_start"
	StageFrontierComplete  = "frontier_complete"
	StageFrontierEmpty     = "frontier_empty"
	StageCrawlStart        = "crawl_start"
	StageCrawlComplete     = "crawl_complete"
	StageNormalizeStart    = "normalize_start"
	StageNormalizeComplete = "normalize_complete"
	StageIndexStart        = "index_start"
	StageIndexComplete     = "index_complete"
	StageIndexSkipped      = "index_skipped"
)

// StageProgress maps stage names to their progress percentage.
var StageProgress = map[string]int{
	StageStarting:          5,
	StageFrontierStart:     10,
	StageFrontierComplete:  20,
	StageCrawlStart:        30,
	StageCrawlComplete:     55,
	StageNormalizeStart:    65,
	StageNormalizeComplete: 75,
	StageIndexStart:        85,
	StageIndexComplete:     95,
}

// JobStats aggregates counters across a job's pipeline run. All fields are
// monotone non-decreasing over the life of a job.
type JobStats struct {
	SeedCount      int `json:"seed_count"`
	PagesFetched   int `json:"pages_fetched"`
	NormalizedDocs int `json:"normalized_docs"`
	DocsIndexed    int `json:"docs_indexed"`
	Skipped        int `json:"skipped"`
	Deduped        int `json:"deduped"`
	Embedded       int `json:"embedded"`
	NewDomains     int `json:"new_domains"`
}

// Merge folds counters from a stage payload into the record, keeping every
// field monotone non-decreasing.
func (s *JobStats) Merge(other JobStats) {
	s.SeedCount = max(s.SeedCount, other.SeedCount)
	s.PagesFetched = max(s.PagesFetched, other.PagesFetched)
	s.NormalizedDocs = max(s.NormalizedDocs, other.NormalizedDocs)
	s.DocsIndexed = max(s.DocsIndexed, other.DocsIndexed)
	s.Skipped = max(s.Skipped, other.Skipped)
	s.Deduped = max(s.Deduped, other.Deduped)
	s.Embedded = max(s.Embedded, other.Embedded)
	s.NewDomains = max(s.NewDomains, other.NewDomains)
}

// Job is the record of one focused-crawl run.
type Job struct {
	ID              string     `json:"id"`
	NormalizedQuery string     `json:"normalized_query"`
	DisplayQuery    string     `json:"display_query"`
	State           JobState   `json:"state"`
	Stage           string     `json:"stage,omitempty"`
	Message         string     `json:"message,omitempty"`
	Progress        int        `json:"progress"`
	UseLLM          bool       `json:"use_llm"`
	Model           string     `json:"model,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Stats           JobStats   `json:"stats"`
	Result          string     `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Terminal reports whether the job has finished.
func (j *Job) Terminal() bool {
	return j.State == JobDone || j.State == JobError
}

// ETASeconds estimates the remaining seconds for a running job from its
// elapsed time and progress. Returns false before any progress is made.
func (j *Job) ETASeconds(now time.Time) (float64, bool) {
	if j.State != JobRunning || j.StartedAt == nil || j.Progress <= 0 {
		return 0, false
	}
	elapsed := now.Sub(*j.StartedAt).Seconds()
	if elapsed < 0 {
		return 0, false
	}
	eta := elapsed * float64(100-j.Progress) / float64(j.Progress)
	if eta < 0 {
		eta = 0
	}
	return eta, true
}

// Clone returns a deep copy safe to hand to readers.
func (j *Job) Clone() *Job {
	dup := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		dup.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		dup.CompletedAt = &t
	}
	return &dup
}

// NormalizeQuery returns the lowercased, whitespace-collapsed form of a
// query used as the dedupe and cooldown key.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// StageEvent is one progress notification from a running job.
type StageEvent struct {
	JobID      string   `json:"job_id,omitempty"`
	Stage      string   `json:"stage"`
	Message    string   `json:"message,omitempty"`
	Progress   int      `json:"progress"`
	ETASeconds float64  `json:"eta_seconds,omitempty"`
	Stats      JobStats `json:"stats"`
	Terminal   bool     `json:"terminal,omitempty"`
}

// ProgressFunc receives pipeline stage events. Implementations must not
// block: they are invoked from the job runner's hot path.
type ProgressFunc func(stage string, message string, stats JobStats)

// EnqueueRequest asks the job engine for a focused-crawl run.
type EnqueueRequest struct {
	Query       string   `json:"query"`
	UseLLM      bool     `json:"use_llm,omitempty"`
	Model       string   `json:"model,omitempty"`
	ManualSeeds []string `json:"manual_seeds,omitempty"`
}

// EnqueueResult reports whether a job was created or an existing one was
// reused.
type EnqueueResult struct {
	JobID        string `json:"job_id"`
	Created      bool   `json:"created"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
	Job          *Job   `json:"job,omitempty"`
}

// JobStatus answers a status query for a job id or query string.
type JobStatus struct {
	Job    *Job   `json:"job"`
	Active []*Job `json:"active,omitempty"`
	Recent []*Job `json:"recent,omitempty"`
}

// JobStore persists job records across restarts.
type JobStore interface {
	// SaveJob upserts the full job record.
	SaveJob(ctx context.Context, job *Job) error

	// FindJob returns a job by id.
	// Returns ENOTFOUND if the job does not exist.
	FindJob(ctx context.Context, id string) (*Job, error)

	// RecentJobs returns the newest jobs first.
	RecentJobs(ctx context.Context, limit int) ([]*Job, error)

	// LastDoneJob returns the most recent successfully completed job for
	// a normalized query. Used for cooldown gating.
	// Returns ENOTFOUND when the query has never completed.
	LastDoneJob(ctx context.Context, normalizedQuery string) (*Job, error)
}

// JobService accepts focused-crawl requests and serves job state.
type JobService interface {
	// Enqueue submits a query. An active job for the same normalized query
	// is returned with Created=false and Deduplicated=true; a query inside
	// its cooldown window returns the last successful job with
	// Created=false.
	Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error)

	// Job returns a snapshot of a job by id.
	// Returns ENOTFOUND if the job does not exist.
	Job(ctx context.Context, id string) (*Job, error)

	// Status returns the job matching a job id or normalized query along
	// with active and recent jobs.
	Status(ctx context.Context, jobID, query string) (*JobStatus, error)

	// Subscribe returns a channel of stage events for a job and a cancel
	// function. The channel closes after a terminal event.
	// Returns ENOTFOUND if the job does not exist.
	Subscribe(id string) (<-chan StageEvent, func(), error)
}
