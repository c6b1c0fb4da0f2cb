package main

import (
	"fmt"

	"github.com/usefocal/focal"
)

// Run executes the jobs command.
func (c *JobsCmd) Run(deps *Dependencies) error {
	if c.ID != "" {
		job, err := deps.JobStore.FindJob(deps.Ctx, c.ID)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", focal.ErrorMessage(err))
			return err
		}
		printJob(deps, job)
		return nil
	}

	jobs, err := deps.JobStore.RecentJobs(deps.Ctx, 20)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", focal.ErrorMessage(err))
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(deps.Stdout, "No jobs recorded. Use 'focal refresh <query>' to start one.")
		return nil
	}

	for _, job := range jobs {
		fmt.Fprintf(deps.Stdout, "%s  %-8s %3d%%  %s\n", job.ID, job.State, job.Progress, job.DisplayQuery)
	}
	return nil
}

// printJob renders one job in detail.
func printJob(deps *Dependencies, job *focal.Job) {
	if job == nil {
		return
	}
	fmt.Fprintf(deps.Stdout, "id:       %s\n", job.ID)
	fmt.Fprintf(deps.Stdout, "query:    %s\n", job.DisplayQuery)
	fmt.Fprintf(deps.Stdout, "state:    %s (%d%%)\n", job.State, job.Progress)
	if job.Stage != "" {
		fmt.Fprintf(deps.Stdout, "stage:    %s  %s\n", job.Stage, job.Message)
	}
	fmt.Fprintf(deps.Stdout, "created:  %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	if job.CompletedAt != nil {
		fmt.Fprintf(deps.Stdout, "finished: %s\n", job.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	switch {
	case job.Error != "":
		fmt.Fprintf(deps.Stdout, "error:    %s\n", job.Error)
	case job.Result != "":
		fmt.Fprintf(deps.Stdout, "result:   %s\n", job.Result)
	}
	s := job.Stats
	fmt.Fprintf(deps.Stdout, "stats:    %d seeds, %d pages, %d indexed, %d deduped, %d skipped\n",
		s.SeedCount, s.PagesFetched, s.DocsIndexed, s.Deduped, s.Skipped)
}
