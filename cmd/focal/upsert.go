package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/usefocal/focal"
)

// Run executes the upsert command.
func (c *UpsertCmd) Run(deps *Dependencies) error {
	text, err := c.readText()
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return focal.Errorf(focal.EINVALID, "document text required")
	}

	res, err := deps.Vectors.UpsertDocument(deps.Ctx, focal.UpsertRequest{
		Text:  text,
		URL:   c.URL,
		Title: c.Title,
	})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", focal.ErrorMessage(err))
		return err
	}

	switch {
	case res.Queued:
		fmt.Fprintf(deps.Stdout, "%s queued: embedder unavailable, the pending worker will index it\n", res.DocID)
	case res.Skipped && res.DuplicateOf != "":
		fmt.Fprintf(deps.Stdout, "%s skipped: near duplicate of %s\n", res.DocID, res.DuplicateOf)
	case res.Skipped:
		fmt.Fprintf(deps.Stdout, "%s skipped: content unchanged\n", res.DocID)
	default:
		fmt.Fprintf(deps.Stdout, "%s indexed: %d chunks, %d dims\n", res.DocID, res.Chunks, res.Dims)
	}
	return nil
}

func (c *UpsertCmd) readText() (string, error) {
	if c.File == "" || c.File == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := os.ReadFile(c.File)
	if err != nil {
		return "", focal.Errorf(focal.EINVALID, "read %s: %v", c.File, err)
	}
	return string(data), nil
}
