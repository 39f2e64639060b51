// Package websearch provides the web_search capability backed by a
// pluggable search engine. SearXNG is the only backend shipped.
package websearch

import "context"

// Result is a single search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Backend queries a search engine.
type Backend interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}
