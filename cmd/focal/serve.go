package main

import (
	"fmt"
)

// Run executes the serve command. It blocks until the context is
// cancelled, then shuts the stack down in order: no new jobs, finish the
// running crawl, stop the pending worker, close the listener.
func (c *ServeCmd) Run(deps *Dependencies) error {
	if err := deps.Pending.Open(); err != nil {
		return err
	}
	defer deps.Pending.Close()

	if err := deps.Server.Open(); err != nil {
		return err
	}
	defer deps.Server.Close()

	fmt.Fprintf(deps.Stdout, "focal listening on %s (data dir %s)\n", deps.Server.URL(), deps.Paths.DataDir)

	<-deps.Ctx.Done()
	deps.Logger.Info().Msg("shutting down")
	return nil
}
