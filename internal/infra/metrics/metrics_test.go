package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistered(t *testing.T) {
	// promauto registers with the default registry at init. Touch each
	// metric and verify gathering does not fail.
	TasksSubmitted.WithLabelValues("subtasks", "complex").Inc()
	TasksFinished.WithLabelValues("completed").Inc()
	TasksActive.Set(1)
	TaskDuration.WithLabelValues("simple").Observe(2.5)
	SubtasksDispatched.Inc()
	SubtasksSettled.WithLabelValues("completed").Inc()
	SubtaskExecution.Observe(1.2)
	NodesConnected.Set(3)
	NodesOnline.Set(2)
	HeartbeatLatency.Observe(42)
	BreakersOpen.Set(0)
	StreamChunks.Inc()
	StreamSessions.Set(1)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("no metric families registered")
	}
}
