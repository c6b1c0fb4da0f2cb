package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/usefocal/focal"
)

// Compile-time interface verification.
var _ focal.JobStore = (*JobStore)(nil)

// JobStore persists focused-crawl job records in the app-state database so
// job history and cooldowns survive restarts.
type JobStore struct {
	mu sync.Mutex
	db *DB
}

// NewJobStore creates the store and ensures its schema.
func NewJobStore(db *DB) (*JobStore, error) {
	s := &JobStore{db: db}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create jobs schema: %w", err)
	}
	return s, nil
}

func (s *JobStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			normalized_query TEXT NOT NULL,
			display_query TEXT NOT NULL,
			state TEXT NOT NULL,
			stage TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			progress INTEGER NOT NULL DEFAULT 0,
			use_llm INTEGER NOT NULL DEFAULT 0,
			model TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			started_at TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			completed_at TEXT NOT NULL DEFAULT '',
			stats_json TEXT NOT NULL DEFAULT '{}',
			result TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_normalized_query ON jobs(normalized_query);
		CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`

	_, err := s.db.db.Exec(schema)
	return err
}

// SaveJob upserts the full job record.
func (s *JobStore) SaveJob(ctx context.Context, job *focal.Job) error {
	if job.ID == "" {
		return focal.Errorf(focal.EINVALID, "job ID required")
	}

	stats, err := json.Marshal(job.Stats)
	if err != nil {
		return err
	}

	var startedAt, completedAt string
	if job.StartedAt != nil {
		startedAt = formatTime(*job.StartedAt)
	}
	if job.CompletedAt != nil {
		completedAt = formatTime(*job.CompletedAt)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO jobs (id, normalized_query, display_query, state, stage, message, progress, use_llm, model, created_at, started_at, updated_at, completed_at, stats_json, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.NormalizedQuery, job.DisplayQuery, string(job.State), job.Stage, job.Message,
		job.Progress, boolToInt(job.UseLLM), job.Model, formatTime(job.CreatedAt), startedAt,
		formatTime(job.UpdatedAt), completedAt, string(stats), job.Result, job.Error)
	return err
}

// FindJob returns a job by id.
func (s *JobStore) FindJob(ctx context.Context, id string) (*focal.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, normalized_query, display_query, state, stage, message, progress, use_llm, model, created_at, started_at, updated_at, completed_at, stats_json, result, error
		FROM jobs
		WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, focal.Errorf(focal.ENOTFOUND, "job not found")
	}
	return job, err
}

// RecentJobs returns the newest jobs first.
func (s *JobStore) RecentJobs(ctx context.Context, limit int) ([]*focal.Job, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, normalized_query, display_query, state, stage, message, progress, use_llm, model, created_at, started_at, updated_at, completed_at, stats_json, result, error
		FROM jobs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*focal.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// LastDoneJob returns the most recent successfully completed job for a
// normalized query.
func (s *JobStore) LastDoneJob(ctx context.Context, normalizedQuery string) (*focal.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, normalized_query, display_query, state, stage, message, progress, use_llm, model, created_at, started_at, updated_at, completed_at, stats_json, result, error
		FROM jobs
		WHERE normalized_query = ? AND state = ?
		ORDER BY completed_at DESC
		LIMIT 1
	`, normalizedQuery, string(focal.JobDone))

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, focal.Errorf(focal.ENOTFOUND, "no completed job for query")
	}
	return job, err
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*focal.Job, error) {
	var job focal.Job
	var state string
	var useLLM int
	var createdAt, startedAt, updatedAt, completedAt, stats string

	if err := sc.Scan(&job.ID, &job.NormalizedQuery, &job.DisplayQuery, &state, &job.Stage,
		&job.Message, &job.Progress, &useLLM, &job.Model, &createdAt, &startedAt,
		&updatedAt, &completedAt, &stats, &job.Result, &job.Error); err != nil {
		return nil, err
	}

	job.State = focal.JobState(state)
	job.UseLLM = useLLM != 0

	var parseErr error
	job.CreatedAt, parseErr = parseRFC3339(createdAt, "created_at")
	if parseErr != nil {
		return nil, parseErr
	}
	job.UpdatedAt, parseErr = parseRFC3339(updatedAt, "updated_at")
	if parseErr != nil {
		return nil, parseErr
	}
	if t := parseTime(startedAt); !t.IsZero() {
		job.StartedAt = &t
	}
	if t := parseTime(completedAt); !t.IsZero() {
		job.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(stats), &job.Stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats for %s: %w", job.ID, err)
	}
	return &job, nil
}
