// Package focal provides a self-hosted focused search engine. It answers
// queries from a locally maintained keyword+vector index and, when coverage
// is insufficient, launches a targeted crawl that discovers seed URLs,
// fetches pages, normalizes and deduplicates them, and incrementally
// updates both indexes while streaming live progress.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., sqlite/, bleve/, chromem/, ollama/).
package focal
