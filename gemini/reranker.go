package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/usefocal/focal"
	"google.golang.org/genai"
)

// Ensure Reranker implements focal.Reranker at compile time.
var _ focal.Reranker = (*Reranker)(nil)

// Reranker reorders a cluster of close-scored candidate URLs with Gemini.
// Any failure, from transport to malformed output, leaves the input order
// unchanged; reranking is best-effort by contract.
type Reranker struct {
	client *genai.Client
}

// NewReranker creates a new Reranker.
func NewReranker(client *genai.Client) *Reranker {
	return &Reranker{client: client}
}

// Rerank returns the URLs reordered best-first for the query.
func (r *Reranker) Rerank(ctx context.Context, query string, urls []string, model string) ([]string, error) {
	if len(urls) < 2 {
		return urls, nil
	}
	if model == "" {
		model = defaultModel
	}

	result, err := r.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{{
			Parts: []*genai.Part{{Text: BuildRerankPrompt(query, urls)}},
		}},
		RerankConfig(),
	)
	if err != nil || result == nil {
		return urls, nil
	}

	return ReorderByRanking(urls, ParseURLArray(result.Text())), nil
}

// RerankConfig returns the GenerateContentConfig for rerank calls.
func RerankConfig() *genai.GenerateContentConfig {
	temp := float32(0.1)
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{
				Text: "You rank URLs by how likely each is to answer a search query with substantive content. Respond with a JSON array containing the given URLs reordered best first. Use the URLs exactly as given. No commentary.",
			}},
		},
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}
}

// BuildRerankPrompt builds the user prompt for a rerank call.
func BuildRerankPrompt(query string, urls []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nURLs:\n", query)
	for _, u := range urls {
		fmt.Fprintf(&sb, "- %s\n", u)
	}
	sb.WriteString("\nReturn the same URLs as a JSON array, best first.")
	return sb.String()
}

// ReorderByRanking applies a model-returned ranking to the input URLs.
// Ranked entries that match an input URL come first in ranking order;
// everything else keeps its original relative order. An empty or
// unrecognizable ranking returns the input unchanged.
func ReorderByRanking(urls, ranked []string) []string {
	index := make(map[string]int, len(urls))
	for i, u := range urls {
		index[u] = i
	}

	taken := make([]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range ranked {
		i, ok := index[u]
		if !ok || taken[i] {
			continue
		}
		taken[i] = true
		out = append(out, u)
	}
	if len(out) == 0 {
		return urls
	}

	for i, u := range urls {
		if !taken[i] {
			out = append(out, u)
		}
	}
	return out
}
