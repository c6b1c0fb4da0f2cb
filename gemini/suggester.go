// Package gemini implements the LLM-assisted discovery surfaces on Google
// Gemini: URL suggestion for queries and reranking of close-scored crawl
// candidates. Both speak a JSON-array protocol; output that does not parse
// degrades to no-op rather than error.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/usefocal/focal"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

// defaultSuggestLimit bounds a suggestion request that does not name one.
const defaultSuggestLimit = 8

// Ensure Suggester implements focal.Suggester at compile time.
var _ focal.Suggester = (*Suggester)(nil)

// Suggester proposes crawl-worthy URLs for a query using Gemini.
type Suggester struct {
	client *genai.Client
}

// NewSuggester creates a new Suggester.
func NewSuggester(client *genai.Client) *Suggester {
	return &Suggester{client: client}
}

// SuggestURLs asks the model for up to limit documentation-grade URLs for
// the query. Output that cannot be parsed as a URL array yields no
// suggestions, never an error.
func (s *Suggester) SuggestURLs(ctx context.Context, query, model string, limit int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, focal.Errorf(focal.EINVALID, "query required")
	}
	if limit <= 0 {
		limit = defaultSuggestLimit
	}
	if model == "" {
		model = defaultModel
	}

	result, err := s.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{{
			Parts: []*genai.Part{{Text: BuildSuggestPrompt(query, limit)}},
		}},
		SuggestConfig(),
	)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, focal.Errorf(focal.EINTERNAL, "gemini returned nil result")
	}

	seen := make(map[string]struct{}, limit)
	var urls []string
	for _, raw := range ParseURLArray(result.Text()) {
		sanitized, ok := focal.SanitizeURL(raw, nil)
		if !ok {
			continue
		}
		if _, dup := seen[sanitized]; dup {
			continue
		}
		seen[sanitized] = struct{}{}
		urls = append(urls, sanitized)
		if len(urls) == limit {
			break
		}
	}
	return urls, nil
}

// SuggestConfig returns the GenerateContentConfig for suggestion calls.
func SuggestConfig() *genai.GenerateContentConfig {
	temp := float32(0.2)
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{
				Text: "You suggest authoritative documentation, reference and project URLs worth crawling for a search query. Respond with a JSON array of absolute http(s) URLs, best first. No commentary.",
			}},
		},
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}
}

// BuildSuggestPrompt builds the user prompt for a suggestion call.
func BuildSuggestPrompt(query string, limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\n", query)
	fmt.Fprintf(&sb, "List up to %d URLs likely to contain substantive, crawlable content answering this query. ", limit)
	sb.WriteString("Prefer official documentation, standards and primary sources over aggregators. ")
	sb.WriteString("Respond with a JSON array of URL strings only.")
	return sb.String()
}

// ParseURLArray extracts the first JSON array of strings from model output.
// Returns nil when no such array can be parsed.
func ParseURLArray(text string) []string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil
	}

	var urls []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &urls); err != nil {
		return nil
	}
	return urls
}
