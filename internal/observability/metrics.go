package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects runtime counters for the agent loop, tool execution and
// the model client. Everything is Prometheus-native so a local scrape or a
// test can inspect the values directly.
type Metrics struct {
	// LLMRequestDuration measures model API call latency in seconds.
	// Labels: provider (openai|anthropic), model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts model requests.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error|cached)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// CacheCounter counts tool-result cache outcomes.
	// Labels: outcome (hit|miss|invalidate)
	CacheCounter *prometheus.CounterVec

	// PatchCounter counts patch engine operations.
	// Labels: mode (apply|write|undo), status (success|error)
	PatchCounter *prometheus.CounterVec

	// PolicyDecisionCounter counts policy gate outcomes.
	// Labels: decision (allow|confirm|deny)
	PolicyDecisionCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and code.
	// Labels: component (agent|tool|provider|patch|cache), code
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge tracking concurrently running sessions.
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers all metrics on a private registry.
// Using a private registry keeps parallel tests from fighting over the
// default global one.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

// NewMetricsWithRegistry registers metrics on the provided registry.
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sidekick",
			Name:      "llm_request_duration_seconds",
			Help:      "Model API call latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider", "model"}),

		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sidekick",
			Name:      "llm_requests_total",
			Help:      "Model requests by provider, model and status.",
		}, []string{"provider", "model", "status"}),

		LLMTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sidekick",
			Name:      "llm_tokens_total",
			Help:      "Token consumption by provider, model and type.",
		}, []string{"provider", "model", "type"}),

		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sidekick",
			Name:      "tool_executions_total",
			Help:      "Tool invocations by name and status.",
		}, []string{"tool_name", "status"}),

		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sidekick",
			Name:      "tool_execution_duration_seconds",
			Help:      "Tool execution time in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),

		CacheCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sidekick",
			Name:      "tool_cache_total",
			Help:      "Tool-result cache outcomes.",
		}, []string{"outcome"}),

		PatchCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sidekick",
			Name:      "patch_operations_total",
			Help:      "Patch engine operations by mode and status.",
		}, []string{"mode", "status"}),

		PolicyDecisionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sidekick",
			Name:      "policy_decisions_total",
			Help:      "Policy gate outcomes.",
		}, []string{"decision"}),

		ErrorCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sidekick",
			Name:      "errors_total",
			Help:      "Errors by component and error code.",
		}, []string{"component", "code"}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sidekick",
			Name:      "active_sessions",
			Help:      "Sessions currently running an agent loop.",
		}),
	}
}
