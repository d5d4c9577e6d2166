// Package websearch defines the web lookup used when the corpus cannot
// answer a question, and for spare-part price lookups.
package websearch

import (
	"context"
	"fmt"
	"strings"
)

// Result is one web hit.
type Result struct {
	// Source is the page URL.
	Source string
	// Snippet is the extracted page content.
	Snippet string
}

// Searcher runs a web query and returns up to a provider-defined number of
// results.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Format renders results the way generation consumes them, one
// "url : content" line per hit.
func Format(results []Result) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%s : %s", r.Source, r.Snippet))
	}
	return strings.Join(lines, "\n")
}

// Placeholder returns a fixed labeled result instead of failing the run.
// A degraded answer that names its missing evidence beats no answer.
func Placeholder(query string) []Result {
	return []Result{{
		Source:  "placeholder://web-search-unavailable",
		Snippet: fmt.Sprintf("Web search is unavailable. No external results for: %s", query),
	}}
}
