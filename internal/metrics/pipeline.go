package metrics

import "github.com/prometheus/client_golang/prometheus"

// Answer pipeline Prometheus metrics.
var (
	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "answers_total",
			Help:      "Total answers produced, by generation mode and route",
		},
		[]string{"mode", "route"}, // route: "chain" / "agent"
	)

	ToolInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "tool_invocations_total",
			Help:      "Total tool invocations, by tool name and outcome",
		},
		[]string{"tool", "outcome"}, // outcome: "ok" / "error"
	)

	AgentIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragline",
			Name:      "agent_iterations",
			Help:      "Reasoning loop iterations per agent run",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 20},
		},
	)

	RerankFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "rerank_fallbacks_total",
			Help:      "Rerank calls that fell back to similarity order",
		},
	)

	MemoryRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "memory_records_total",
			Help:      "Memory entries recorded after completed queries",
		},
		[]string{"status"}, // "ok" / "error"
	)

	RouteDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Name:      "route_decisions_total",
			Help:      "Routing decisions, by classified intent and chosen strategy",
		},
		[]string{"intent", "strategy"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(AnswersTotal)
	prometheus.MustRegister(ToolInvocationsTotal)
	prometheus.MustRegister(AgentIterations)
	prometheus.MustRegister(RerankFallbacksTotal)
	prometheus.MustRegister(MemoryRecordsTotal)
	prometheus.MustRegister(RouteDecisionsTotal)
	pipelineMetricsRegistered = true
}
