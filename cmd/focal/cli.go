package main

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/usefocal/focal"
	"github.com/usefocal/focal/crawl"
	"github.com/usefocal/focal/env"
	"github.com/usefocal/focal/fs"
	focalhttp "github.com/usefocal/focal/http"
)

// Dependencies holds all services and configuration for command execution.
// Run wires only what the invoked command needs.
type Dependencies struct {
	Ctx    context.Context
	Stdout io.Writer
	Stderr io.Writer
	Config *env.Config
	Paths  focal.Paths
	Logger zerolog.Logger

	Search     focal.SearchService
	Engine     *crawl.Engine
	JobStore   focal.JobStore
	Vectors    focal.VectorStore
	Embedder   focal.Embedder
	Normalized focal.NormalizedStore
	Raw        focal.RawCrawlStore
	RawDir     string
	Extractor  focal.Extractor
	Converter  focal.Converter
	Tokens     focal.TokenCounter
	Server     *focalhttp.Server
	Pending    *crawl.PendingWorker
	ExportDir  func(baseDir, name string) *fs.ExportStore
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Run the search API server with the job engine and pending worker"`
	Search  SearchCmd  `cmd:"" help:"Run a hybrid search against the local index"`
	Refresh RefreshCmd `cmd:"" help:"Run a focused crawl for a query"`
	Upsert  UpsertCmd  `cmd:"" help:"Chunk, embed and store a document in the vector index"`
	Jobs    JobsCmd    `cmd:"" help:"Show focused-crawl job status and history"`
	Export  ExportCmd  `cmd:"" help:"Export crawled documents as a markdown tree"`
}

// ServeCmd is the "serve" subcommand.
type ServeCmd struct {
	Addr string `help:"Listen address, overrides LISTEN_ADDR"`
}

// SearchCmd is the "search" subcommand.
type SearchCmd struct {
	Query string `arg:"" help:"Search query"`
	Limit int    `short:"n" default:"10" help:"Maximum results"`
	LLM   bool   `help:"Allow LLM-assisted retrieval"`
	Model string `help:"LLM model override"`
	JSON  bool   `help:"Print the raw JSON response"`
}

// RefreshCmd is the "refresh" subcommand.
type RefreshCmd struct {
	Query string `arg:"" help:"Query to crawl for"`
	LLM   bool   `help:"Use the LLM for seed suggestion and reranking"`
	Model string `help:"LLM model override"`
	Wait  bool   `short:"w" help:"Stream stage progress while the crawl runs"`
}

// UpsertCmd is the "upsert" subcommand.
type UpsertCmd struct {
	File  string `arg:"" optional:"" help:"Text file to index, - or empty for stdin"`
	URL   string `help:"Document URL"`
	Title string `help:"Document title"`
}

// JobsCmd is the "jobs" subcommand.
type JobsCmd struct {
	ID string `help:"Show one job by id"`
}

// ExportCmd is the "export" subcommand.
type ExportCmd struct {
	Dir string `arg:"" help:"Output directory"`
}
