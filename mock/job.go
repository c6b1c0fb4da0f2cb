package mock

import (
	"context"

	"github.com/usefocal/focal"
)

var _ focal.JobService = (*JobService)(nil)

// JobService is a mock implementation of focal.JobService.
type JobService struct {
	EnqueueFn   func(ctx context.Context, req focal.EnqueueRequest) (*focal.EnqueueResult, error)
	JobFn       func(ctx context.Context, id string) (*focal.Job, error)
	StatusFn    func(ctx context.Context, jobID, query string) (*focal.JobStatus, error)
	SubscribeFn func(id string) (<-chan focal.StageEvent, func(), error)
}

func (s *JobService) Enqueue(ctx context.Context, req focal.EnqueueRequest) (*focal.EnqueueResult, error) {
	return s.EnqueueFn(ctx, req)
}

func (s *JobService) Job(ctx context.Context, id string) (*focal.Job, error) {
	return s.JobFn(ctx, id)
}

func (s *JobService) Status(ctx context.Context, jobID, query string) (*focal.JobStatus, error) {
	return s.StatusFn(ctx, jobID, query)
}

func (s *JobService) Subscribe(id string) (<-chan focal.StageEvent, func(), error) {
	return s.SubscribeFn(id)
}

var _ focal.JobStore = (*JobStore)(nil)

// JobStore is a mock implementation of focal.JobStore.
type JobStore struct {
	SaveJobFn     func(ctx context.Context, job *focal.Job) error
	FindJobFn     func(ctx context.Context, id string) (*focal.Job, error)
	RecentJobsFn  func(ctx context.Context, limit int) ([]*focal.Job, error)
	LastDoneJobFn func(ctx context.Context, normalizedQuery string) (*focal.Job, error)
}

func (s *JobStore) SaveJob(ctx context.Context, job *focal.Job) error {
	return s.SaveJobFn(ctx, job)
}

func (s *JobStore) FindJob(ctx context.Context, id string) (*focal.Job, error) {
	return s.FindJobFn(ctx, id)
}

func (s *JobStore) RecentJobs(ctx context.Context, limit int) ([]*focal.Job, error) {
	return s.RecentJobsFn(ctx, limit)
}

func (s *JobStore) LastDoneJob(ctx context.Context, normalizedQuery string) (*focal.Job, error) {
	return s.LastDoneJobFn(ctx, normalizedQuery)
}
