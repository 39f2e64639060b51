// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring toolloop runs and the HTTP surfaces that ship with it.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// ToolBuckets covers local and remote capability handlers, 1ms to 30s.
var ToolBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}

var (
	// HTTPRequestsTotal counts requests served by the bundled HTTP handlers
	// (mock backend, MCP demo server) by handler, method, and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolloop_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"handler", "method", "status"},
	)

	// HTTPRequestDuration records HTTP request duration in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolloop_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: LLMBuckets,
		},
		[]string{"handler", "method"},
	)

	// StreamsActive tracks SSE streams in flight, on both the client and
	// the serving side.
	StreamsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "toolloop_streams_active",
			Help: "Active SSE streams",
		},
		[]string{"side"},
	)

	// ProviderRequestsTotal counts requests sent to backend LLM providers.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolloop_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records backend provider latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolloop_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolloop_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// ProviderRetriesTotal counts transport retries and stream replays.
	ProviderRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolloop_provider_retries_total",
			Help: "Provider retries",
		},
		[]string{"provider", "kind"},
	)

	// ToolExecutionsTotal counts tool executions by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolloop_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// ToolExecutionDuration records handler duration in seconds.
	ToolExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolloop_tool_execution_duration_seconds",
			Help:    "Tool execution duration",
			Buckets: ToolBuckets,
		},
		[]string{"tool_name"},
	)

	// AuthRejectedTotal counts requests refused by the auth middleware,
	// by reason (unauthenticated, rate_limited).
	AuthRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolloop_auth_rejected_total",
			Help: "Requests rejected by authentication or rate limiting",
		},
		[]string{"reason"},
	)

	// RunsTotal counts finished runs by result status.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolloop_runs_total",
			Help: "Orchestration runs",
		},
		[]string{"status"},
	)

	// RunInteractions records how many provider calls a run consumed.
	RunInteractions = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toolloop_run_interactions",
			Help:    "Provider calls per run",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20, 50},
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		StreamsActive,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		ProviderRetriesTotal,
		ToolExecutionsTotal,
		ToolExecutionDuration,
		AuthRejectedTotal,
		RunsTotal,
		RunInteractions,
	)
}
