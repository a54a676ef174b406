// Package metrics provides Prometheus metrics for the Iris coordinator:
// counters, gauges, and histograms for tasks, subtasks, the worker pool,
// and the streaming hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksSubmitted counts accepted inference tasks by execution mode.
var TasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "iris",
	Name:      "tasks_submitted_total",
	Help:      "Total inference tasks accepted.",
}, []string{"mode", "difficulty"})

// TasksFinished counts tasks reaching a terminal state.
var TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "iris",
	Name:      "tasks_finished_total",
	Help:      "Total tasks reaching a terminal state.",
}, []string{"status"})

// TasksActive tracks tasks currently being processed.
var TasksActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "iris",
	Name:      "tasks_active",
	Help:      "Number of tasks currently being processed.",
})

// TaskDuration tracks end-to-end task duration in seconds.
var TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "iris",
	Name:      "task_duration_seconds",
	Help:      "End-to-end task duration in seconds.",
	Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
}, []string{"difficulty"})

// ─── Subtasks ───────────────────────────────────────────────────────────────

// SubtasksDispatched counts subtask assignments, including reassignments.
var SubtasksDispatched = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "iris",
	Name:      "subtasks_dispatched_total",
	Help:      "Total subtask assignments dispatched to workers.",
})

// SubtasksSettled counts subtask outcomes.
var SubtasksSettled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "iris",
	Name:      "subtasks_settled_total",
	Help:      "Total subtasks settled, by outcome.",
}, []string{"status"})

// SubtaskExecution tracks worker-reported execution time in seconds.
var SubtaskExecution = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "iris",
	Name:      "subtask_execution_seconds",
	Help:      "Worker-reported subtask execution time in seconds.",
	Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
})

// ─── Worker Pool ────────────────────────────────────────────────────────────

// NodesConnected tracks workers holding an open channel.
var NodesConnected = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "iris",
	Name:      "nodes_connected",
	Help:      "Workers holding an open channel.",
})

// NodesOnline tracks workers inside the heartbeat window.
var NodesOnline = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "iris",
	Name:      "nodes_online",
	Help:      "Workers inside the heartbeat window.",
})

// HeartbeatLatency tracks smoothed heartbeat latency in milliseconds.
var HeartbeatLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "iris",
	Name:      "heartbeat_latency_ms",
	Help:      "Smoothed worker heartbeat latency in milliseconds.",
	Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
})

// BreakersOpen tracks workers currently excluded by their circuit breaker.
var BreakersOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "iris",
	Name:      "breakers_open",
	Help:      "Workers currently excluded by an open circuit breaker.",
})

// ─── Streaming ──────────────────────────────────────────────────────────────

// StreamChunks counts chunks fanned in from workers.
var StreamChunks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "iris",
	Name:      "stream_chunks_total",
	Help:      "Total stream chunks received from workers.",
})

// StreamSessions tracks live stream sessions.
var StreamSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "iris",
	Name:      "stream_sessions",
	Help:      "Live stream sessions.",
})
