package main

import (
	"fmt"
	"time"

	"github.com/usefocal/focal"
	"github.com/usefocal/focal/crawl"
)

// Run executes the refresh command. The job runs on the in-process
// engine; the command waits for the terminal state so the crawl is not
// lost when the process exits.
func (c *RefreshCmd) Run(deps *Dependencies) error {
	res, err := deps.Engine.Enqueue(deps.Ctx, focal.EnqueueRequest{
		Query:  c.Query,
		UseLLM: c.LLM,
		Model:  c.Model,
	})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", focal.ErrorMessage(err))
		return err
	}

	switch {
	case res.Created:
		fmt.Fprintf(deps.Stdout, "job %s started for %q\n", res.JobID, c.Query)
	case res.Deduplicated:
		fmt.Fprintf(deps.Stdout, "job %s already running for %q, attaching\n", res.JobID, c.Query)
	default:
		fmt.Fprintf(deps.Stdout, "query %q is in its cooldown window; last run:\n", c.Query)
		printJob(deps, res.Job)
		return nil
	}

	events, cancel, err := deps.Engine.Subscribe(res.JobID)
	if err != nil {
		return err
	}
	defer cancel()

	start := time.Now()
	var last focal.StageEvent
	for {
		select {
		case <-deps.Ctx.Done():
			fmt.Fprintln(deps.Stderr, "interrupted; the job keeps its progress and the query can be refreshed again")
			return deps.Ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return c.finish(deps, res.JobID, last)
			}
			last = ev
			if c.Wait {
				line := fmt.Sprintf("[%3d%%] %-20s %s", ev.Progress, ev.Stage, crawl.TruncateURL(ev.Message, 72))
				if ev.Progress > 0 && ev.Progress < 100 {
					elapsed := time.Since(start).Seconds()
					line += fmt.Sprintf("  (eta %s)", crawl.FormatETA(elapsed*float64(100-ev.Progress)/float64(ev.Progress)))
				}
				fmt.Fprintln(deps.Stdout, line)
			}
			if ev.Terminal {
				return c.finish(deps, res.JobID, ev)
			}
		}
	}
}

func (c *RefreshCmd) finish(deps *Dependencies, jobID string, last focal.StageEvent) error {
	job, err := deps.Engine.Job(deps.Ctx, jobID)
	if err != nil {
		return err
	}
	if job.State == focal.JobError {
		fmt.Fprintf(deps.Stderr, "job %s failed: %s\n", jobID, job.Error)
		return focal.Errorf(focal.EINTERNAL, "focused crawl failed: %s", job.Error)
	}

	s := last.Stats
	fmt.Fprintf(deps.Stdout, "done: %d seeds, %d pages fetched, %d documents indexed (%d deduped, %d skipped)\n",
		s.SeedCount, s.PagesFetched, s.DocsIndexed, s.Deduped, s.Skipped)
	return nil
}
