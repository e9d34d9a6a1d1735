// Package metrics provides Prometheus instrumentation for the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksTotal counts processed queue tasks by outcome (ok, error, panic).
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_tasks_total",
			Help: "Queue tasks processed by outcome",
		},
		[]string{"outcome"},
	)

	// ActionsTotal counts decided actions (reply, react, ignore, skip).
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_actions_total",
			Help: "Actions decided for inbound messages",
		},
		[]string{"action"},
	)

	// ClassifierVerdicts counts respond/ignore verdicts.
	ClassifierVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_classifier_verdicts_total",
			Help: "Classifier verdicts",
		},
		[]string{"verdict"},
	)

	// LLMDuration tracks LLM call latency.
	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replybot_llm_duration_seconds",
			Help:    "LLM call duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"purpose", "status"},
	)

	// QueueDepth is the number of tasks waiting across all conversations.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "replybot_queue_depth",
			Help: "Tasks waiting in conversation queues",
		},
	)

	// Conversations is the number of conversation queues created.
	Conversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "replybot_conversations",
			Help: "Conversation queues alive",
		},
	)

	// HistoryResets counts history wipes by reason (admin, blocked).
	HistoryResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_history_resets_total",
			Help: "Conversation history resets",
		},
		[]string{"reason"},
	)

	// OutboundErrors counts failed platform calls.
	OutboundErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replybot_outbound_errors_total",
			Help: "Failed outbound platform calls",
		},
		[]string{"call"},
	)
)

// RecordLLM records one LLM call.
func RecordLLM(purpose string, ok bool, seconds float64) {
	status := "ok"
	if !ok {
		status = "error"
	}
	LLMDuration.WithLabelValues(purpose, status).Observe(seconds)
}
