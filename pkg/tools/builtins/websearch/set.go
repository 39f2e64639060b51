package websearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/toolloop/pkg/tools"
)

const (
	// ToolName is the capability name advertised to the model.
	ToolName = "web_search"

	// BackendSearXNG selects the SearXNG backend.
	BackendSearXNG = "searxng"

	defaultMaxResults = 5
)

// Config configures the web_search capability.
type Config struct {
	Backend    string        `yaml:"backend"`
	URL        string        `yaml:"url"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Set is the capability set providing web_search.
type Set struct {
	backend    Backend
	name       string
	maxResults int

	queries *prometheus.CounterVec
	results *prometheus.HistogramVec
}

var _ tools.Set = (*Set)(nil)

// New builds the set from configuration.
func New(cfg Config) (*Set, error) {
	if cfg.Backend == "" {
		cfg.Backend = BackendSearXNG
	}
	switch cfg.Backend {
	case BackendSearXNG:
		if cfg.URL == "" {
			return nil, errors.New("web_search: url is required for the searxng backend")
		}
		return NewWithBackend(cfg.Backend, NewSearXNG(cfg.URL, cfg.Timeout), cfg.MaxResults), nil
	default:
		return nil, fmt.Errorf("web_search: unknown backend %q", cfg.Backend)
	}
}

// NewWithBackend builds the set around an explicit backend. maxResults
// defaults to 5.
func NewWithBackend(name string, backend Backend, maxResults int) *Set {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Set{
		backend:    backend,
		name:       name,
		maxResults: maxResults,
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolloop_websearch_queries_total",
				Help: "Total web search queries",
			},
			[]string{"backend", "status"},
		),
		results: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolloop_websearch_results_returned",
				Help:    "Number of web search results returned",
				Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
			},
			[]string{"backend"},
		),
	}
}

// Name returns "websearch".
func (s *Set) Name() string { return "websearch" }

// Capabilities returns the single web_search capability.
func (s *Set) Capabilities() []tools.Capability {
	return []tools.Capability{{
		Descriptor: tools.Descriptor{
			Name:        ToolName,
			Description: "Search the web for current information",
			Parameters: []tools.Parameter{
				{Name: "query", Type: tools.TypeString, Description: "Search query", Required: true},
			},
		},
		Handler: s.search,
	}}
}

// Collectors exposes the query and result metrics.
func (s *Set) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.queries, s.results}
}

func (s *Set) search(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		s.queries.WithLabelValues(s.name, "error").Inc()
		return "", errors.New("query must not be empty")
	}

	results, err := s.backend.Search(ctx, query, s.maxResults)
	if err != nil {
		s.queries.WithLabelValues(s.name, "error").Inc()
		return "", fmt.Errorf("search failed: %w", err)
	}

	s.queries.WithLabelValues(s.name, "success").Inc()
	s.results.WithLabelValues(s.name).Observe(float64(len(results)))
	return formatResults(query, results), nil
}

func formatResults(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s\n   URL: %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return b.String()
}
