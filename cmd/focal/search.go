package main

import (
	"encoding/json"
	"fmt"

	"github.com/usefocal/focal"
)

// Run executes the search command.
func (c *SearchCmd) Run(deps *Dependencies) error {
	res, err := deps.Search.Search(deps.Ctx, c.Query, focal.SearchOptions{
		Limit:  c.Limit,
		UseLLM: c.LLM,
		Model:  c.Model,
	})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", focal.ErrorMessage(err))
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if len(res.Results) == 0 {
		fmt.Fprintln(deps.Stdout, "No results.")
		return nil
	}
	if res.KeywordFallback {
		fmt.Fprintln(deps.Stderr, "note: vector search unavailable, keyword results only")
	}
	for i, r := range res.Results {
		fmt.Fprintf(deps.Stdout, "%2d. %s\n    %s  [%.3f %s]\n", i+1, r.Title, r.URL, r.BlendedScore, r.MatchReason)
		if r.Snippet != "" {
			fmt.Fprintf(deps.Stdout, "    %s\n", r.Snippet)
		}
	}
	fmt.Fprintf(deps.Stdout, "\n%d results, confidence %.2f\n", len(res.Results), res.Confidence)
	return nil
}
