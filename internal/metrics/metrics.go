// Package metrics exposes the process counters on the default Prometheus
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PollTicks counts completed poll ticks per source.
	PollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideagraph_poll_ticks_total",
		Help: "Completed poll ticks by source.",
	}, []string{"source"})

	// MessagesHandled counts routed messages per source and outcome
	// (comment, created, ignored, failed, poisoned, self).
	MessagesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideagraph_messages_total",
		Help: "Inbound messages by source and routing outcome.",
	}, []string{"source", "outcome"})

	// AgentInvocations counts agent gateway calls per agent and outcome.
	AgentInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideagraph_agent_invocations_total",
		Help: "Agent gateway invocations by agent name and outcome.",
	}, []string{"agent", "outcome"})

	// KnowledgeUpserts counts knowledge index writes per object type.
	KnowledgeUpserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideagraph_knowledge_upserts_total",
		Help: "Knowledge index upserts by object type.",
	}, []string{"type"})

	// QuestionLatency observes the end-to-end answer pipeline duration.
	QuestionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ideagraph_question_seconds",
		Help:    "Question answering pipeline latency.",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler serves the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
